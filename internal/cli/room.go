package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(meCmd)
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("room", "r", "general", "Room to join")
}

var meCmd = &cobra.Command{
	Use:   "me",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := GetCurrentProfile()
		if err != nil {
			return err
		}

		user, err := NewAPIClientFromProfile(profile).Me(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch user: %w", err)
		}

		return RenderUser(cmd.OutOrStdout(), user, outputFormat)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a room and chat interactively",
	Long: `Join a room and chat. Each line read from stdin is sent to the room;
messages and join notifications are printed as they arrive. End input (Ctrl-D)
to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		room, _ := cmd.Flags().GetString("room")

		profile, err := GetCurrentProfile()
		if err != nil {
			return err
		}

		conn, err := NewAPIClientFromProfile(profile).DialRooms(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		if err := conn.Join(room); err != nil {
			return fmt.Errorf("failed to join %s: %w", room, err)
		}
		Info(cmd.ErrOrStderr(), "Joined #%s as profile '%s'", room, profile.Name)

		return chat(cmd.Context(), conn, room, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// chat pumps stdin lines into room and prints incoming events until either side ends.
func chat(ctx context.Context, conn *RoomConn, room string, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		for {
			event, err := conn.Next()
			if err != nil {
				readErr <- err
				return
			}
			fmt.Fprintln(out, FormatEvent(event))
		}
	}()

	lines := make(chan string)
	inputDone := make(chan error, 1)
	go func() { inputDone <- scanLines(ctx, in, lines) }()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErr:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)

		case line := <-lines:
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := conn.Send(room, text); err != nil {
				return fmt.Errorf("failed to send: %w", err)
			}

		case err := <-inputDone:
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		}
	}
}

// scanLines forwards lines from in until input ends or ctx is cancelled.
func scanLines(ctx context.Context, in io.Reader, lines chan<- string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
