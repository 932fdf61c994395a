package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(profileCmd)

	tokenCmd.AddCommand(tokenSetCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileSelectCmd)

	loginCmd.Flags().String("provider", "github", "OAuth provider")
	loginCmd.Flags().StringP("server", "s", "", "Server URL (defaults to the current profile's server)")

	tokenSetCmd.Flags().StringP("server", "s", "http://localhost:3000", "Server URL")
	tokenSetCmd.Flags().StringP("name", "n", defaultProfileName, "Profile name")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Print the provider sign-in URL",
	Long: `Start the login flow and print the provider authorization URL.

Open the URL in a browser. After signing in, the server's callback answers with
a session token; store it with 'roomctl token set'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		serverURL, _ := cmd.Flags().GetString("server")

		if serverURL == "" {
			profile, err := GetCurrentProfile()
			if err != nil {
				return fmt.Errorf("no --server given and %w", err)
			}
			serverURL = profile.ServerURL
		}

		loginURL, err := NewAPIClient(serverURL, "").LoginURL(cmd.Context(), provider)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		out := cmd.OutOrStdout()
		Info(out, "Open this URL to sign in with %s:", provider)
		fmt.Fprintln(out, loginURL)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored session token",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store a session token",
	Long: `Store a session token in a profile. The token is read from the terminal
without echo, or from stdin when it is not a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		name, _ := cmd.Flags().GetString("name")

		token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		profile := Profile{Name: name, ServerURL: strings.TrimRight(serverURL, "/"), Token: token}
		if err := SaveProfile(profile); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Token stored in profile '%s'", name)
		return nil
	},
}

// readToken prompts without echo on a terminal and reads one line otherwise
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	var token string

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Session token: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("token is required")
	}
	return token, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored profile",
	Long: `Remove the session token for the specified profile.
If no profile is specified, removes the current default profile.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var profileName string
		if len(args) > 0 {
			profileName = args[0]
		} else {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			profileName = config.DefaultProfile
		}

		if profileName == "" {
			return fmt.Errorf("no profile specified and no default profile set")
		}

		if err := RemoveProfile(profileName); err != nil {
			return fmt.Errorf("failed to remove profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Profile '%s' removed", profileName)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		profile, err := GetCurrentProfile()
		if err != nil {
			fmt.Fprintln(out, "Status: Not authenticated")
			fmt.Fprintf(out, "Error: %s\n", err)
			return nil
		}

		fmt.Fprintf(out, "Profile: %s\n", profile.Name)
		fmt.Fprintf(out, "Server: %s\n", profile.ServerURL)
		fmt.Fprintf(out, "Token: %s\n", maskToken(profile.Token))

		client := NewAPIClientFromProfile(profile)
		if err := client.TestConnection(cmd.Context()); err != nil {
			Warning(out, "Server unreachable: %s", err)
			return nil
		}
		if _, err := client.Me(cmd.Context()); err != nil {
			Warning(out, "Session rejected: %s", err)
			return nil
		}

		Success(out, "Authenticated")
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage stored profiles",
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all profiles",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, defaultProfile, err := ListProfiles()
		if err != nil {
			return fmt.Errorf("failed to list profiles: %w", err)
		}

		if len(profiles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No profiles configured")
			return nil
		}

		return RenderProfiles(cmd.OutOrStdout(), profiles, defaultProfile, outputFormat)
	},
}

var profileSelectCmd = &cobra.Command{
	Use:     "select [name]",
	Short:   "Select a profile as default",
	Aliases: []string{"switch", "use"},
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := SetCurrentProfile(args[0]); err != nil {
			return fmt.Errorf("failed to select profile: %w", err)
		}

		Success(cmd.OutOrStdout(), "Profile '%s' selected as default", args[0])
		return nil
	},
}
