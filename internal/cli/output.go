package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatYML  = "yml"
)

// RenderUser renders the signed-in user in the specified format
func RenderUser(w io.Writer, user *domain.UserProfile, format string) error {
	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, map[string]interface{}{"user": user})
	case formatYAML, formatYML:
		return renderYAML(w, map[string]interface{}{"user": user})
	default:
		return renderUserTable(w, user)
	}
}

// RenderProfiles renders the stored profiles with the default marked
func RenderProfiles(w io.Writer, profiles []Profile, defaultProfile, format string) error {
	masked := make([]Profile, len(profiles))
	for i, p := range profiles {
		p.Token = maskToken(p.Token)
		masked[i] = p
	}

	switch strings.ToLower(format) {
	case formatJSON:
		return renderJSON(w, masked)
	case formatYAML, formatYML:
		return renderYAML(w, masked)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Name", "Server", "Token", "Default"})
	for _, p := range masked {
		isDefault := ""
		if p.Name == defaultProfile {
			isDefault = "*"
		}
		t.AppendRow(table.Row{p.Name, p.ServerURL, p.Token, isDefault})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func renderUserTable(w io.Writer, user *domain.UserProfile) error {
	if user == nil {
		_, err := fmt.Fprintln(w, "No stored profile for this session")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Login", "Name", "Avatar"})
	t.AppendRow(table.Row{user.ID, user.Login, user.Name, user.AvatarURL})
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func renderJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func renderYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s", data)
	return err
}

// FormatEvent turns a server event into one chat line
func FormatEvent(event RoomEvent) string {
	switch domain.RoomEventType(event.Type) {
	case domain.EventMessage:
		var data domain.MessageData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "malformed message: " + string(event.Data)
		}
		return fmt.Sprintf("[%s] #%s <%s> %s", data.SentAt.Local().Format(time.Kitchen), data.Room, displayName(data.User), data.Text)

	case domain.EventNotification:
		var data domain.NotificationData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "malformed notification: " + string(event.Data)
		}
		return fmt.Sprintf("* %s joined #%s", displayName(data.User), data.Room)

	case domain.EventError:
		var data domain.ErrorData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return "malformed error: " + string(event.Data)
		}
		return fmt.Sprintf("! %s: %s", data.Code, data.Message)

	default:
		return fmt.Sprintf("? %s %s", event.Type, string(event.Data))
	}
}

func displayName(identity domain.Identity) string {
	if identity.Name != "" {
		return identity.Name
	}
	return identity.ID
}

// Success prints a success message with a checkmark
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "✓ "+format+"\n", args...)
}

// Warning prints a warning message
func Warning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "⚠ "+format+"\n", args...)
}

// Info prints an informational message
func Info(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "ℹ "+format+"\n", args...)
}
