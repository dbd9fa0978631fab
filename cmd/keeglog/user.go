package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/keeglog/internal/config"
	"github.com/verte-zerg/keeglog/internal/model"
	"github.com/verte-zerg/keeglog/internal/profile"
)

var (
	userActivate bool
	setpassUser  string
	setpassMode  string
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage participants",
	}
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a participant",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserCreateCmd,
	}
	create.Flags().BoolVar(&userActivate, "activate", true, "set as active user after creation")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "activate <name>",
		Short: "Set the active participant",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserActivateCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List participants",
		Args:  cobra.NoArgs,
		RunE:  runUserListCmd,
	})
	return cmd
}

func runUserCreateCmd(cmd *cobra.Command, args []string) error {
	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	name := args[0]
	created, err := profile.CreateUser(profiles, name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "User %s created.\n", name)
	} else {
		fmt.Fprintf(out, "User %s already exists.\n", name)
	}
	if userActivate {
		if err := profile.SetActiveUser(profiles, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "Active user set to: %s.\n", name)
	}
	return nil
}

func runUserActivateCmd(cmd *cobra.Command, args []string) error {
	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	if err := profile.SetActiveUser(profiles, args[0]); err != nil {
		return fmt.Errorf("%w (known users: %s)", err, strings.Join(profile.ListUsers(profiles), ", "))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Active user set to: %s.\n", args[0])
	return nil
}

func runUserListCmd(cmd *cobra.Command, _ []string) error {
	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	return writeUsers(cmd, profiles)
}

func writeUsers(cmd *cobra.Command, profiles config.Store) error {
	users := profile.ListUsers(profiles)
	active, _ := profile.ActiveUser(profiles)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Total users: %d\n", len(users))
	for _, u := range users {
		prefix := " "
		if u == active {
			prefix = "*"
		}
		if _, err := fmt.Fprintf(out, "%s %s\n", prefix, u); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode [1|2]",
		Short: "Show or set the active password mode",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runModeCmd,
	}
}

func runModeCmd(cmd *cobra.Command, args []string) error {
	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		if mode, err := profile.ActiveMode(profiles); err == nil {
			fmt.Fprintf(out, "Active mode: %d (%s)\n", int(mode), mode)
		}
		for _, mode := range model.Modes() {
			fmt.Fprintf(out, "Mode %d: %s (%d symbols from %q)\n", int(mode), mode, mode.Length(), mode.Alphabet())
		}
		return nil
	}
	mode, err := model.ParseMode(args[0])
	if err != nil {
		return err
	}
	if err := profile.SetActiveMode(profiles, mode); err != nil {
		return err
	}
	fmt.Fprintf(out, "Active mode set to %d (%s).\n", int(mode), mode)
	return nil
}

func newSetpassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setpass",
		Short: "Store the password typed during prediction sessions",
		Args:  cobra.NoArgs,
		RunE:  runSetpassCmd,
	}
	cmd.Flags().StringVar(&setpassUser, "user", "", "participant (default: active user)")
	cmd.Flags().StringVar(&setpassMode, "mode", "", "password mode (default: active mode)")
	return cmd
}

func runSetpassCmd(cmd *cobra.Command, _ []string) error {
	profiles, err := openProfiles()
	if err != nil {
		return err
	}
	user := setpassUser
	if user == "" {
		if user, err = profile.ActiveUser(profiles); err != nil {
			return err
		}
	}
	var mode model.PasswordMode
	if setpassMode != "" {
		if mode, err = model.ParseMode(setpassMode); err != nil {
			return err
		}
	} else if mode, err = profile.ActiveMode(profiles); err != nil {
		return err
	}
	if !profile.UserExists(profiles, user) {
		return fmt.Errorf("%w: %s", profile.ErrUnknownUser, user)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Setting password for user: %s, password mode: %s...\n", user, mode)
	pw, err := promptPassword(mode)
	if err != nil {
		return err
	}
	if err := profile.SetPassword(profiles, user, mode, pw); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote password for user: %s.\n", user)
	return nil
}

// promptPassword asks twice without echo until both entries match and
// the format is valid. Non-terminal input is read line by line.
func promptPassword(mode model.PasswordMode) (string, error) {
	read := readLineFunc()
	for {
		first, err := read(fmt.Sprintf("Enter a %d character password: ", mode.Length()))
		if err != nil {
			return "", err
		}
		if err := profile.ValidatePassword(mode, first); err != nil {
			logErrf("%v\n", err)
			continue
		}
		second, err := read("Re-enter to confirm: ")
		if err != nil {
			return "", err
		}
		if first != second {
			logErrf("Confirmation does not match, try again.\n")
			continue
		}
		return first, nil
	}
}

func readLineFunc() func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return func(prompt string) (string, error) {
			logErrf("%s", prompt)
			b, err := term.ReadPassword(fd)
			logErrf("\n")
			if err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return strings.TrimSpace(string(b)), nil
		}
	}
	scanner := bufio.NewScanner(os.Stdin)
	return func(prompt string) (string, error) {
		logErrf("%s", prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("failed to read password: %w", err)
			}
			return "", fmt.Errorf("failed to read password: unexpected end of input")
		}
		return strings.TrimSpace(scanner.Text()), nil
	}
}
