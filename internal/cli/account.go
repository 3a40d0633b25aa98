package cli

import (
	"errors"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"readalong/internal/credentials"
	"readalong/internal/models"
	"readalong/internal/profileclient"
)

const passwordEnv = "READALONG_PASSWORD"

func passwordFlag(cmd *cobra.Command, password *string) {
	cmd.Flags().StringVar(password, "password", "", "account password (default: $"+passwordEnv+")")
}

func resolvePassword(password string) (string, error) {
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return "", errors.New("password required: pass --password or set " + passwordEnv)
	}
	return password, nil
}

func newSignupCmd(a *app) *cobra.Command {
	var email, name, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a reader account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			if name == "" {
				if name, err = credentials.GenerateReaderName(); err != nil {
					return err
				}
			}

			profile, err := profileclient.Signup(cmd.Context(), a.cfg.ServerURL, email, pw, name)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Welcome, %s! Your account is ready. Run `reader login` to sign in.\n", profile.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: a random reader name)")
	passwordFlag(cmd, &password)
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			sess, err := profileclient.Login(cmd.Context(), a.cfg.ServerURL, email, pw)
			if err != nil {
				return err
			}
			if err := a.cache.Save(a.cfg.ServerURL, sess); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Logged in as %s.\n", sess.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	passwordFlag(cmd, &password)
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cache.Clear(); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Logged out.\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show your profile and score",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := client.GetProfile(cmd.Context(), sess.UserID)
			if err != nil {
				return err
			}
			printProfile(cmd, profile)
			return nil
		},
	}
}

func printProfile(cmd *cobra.Command, p *models.Profile) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	printf(w, "name:\t%s\n", p.Name)
	printf(w, "email:\t%s\n", p.Email)
	if p.Age > 0 {
		printf(w, "age:\t%d\n", p.Age)
	}
	printf(w, "avatar:\t%s\n", p.Avatar)
	printf(w, "score:\t%d\n", p.Score)
	_ = w.Flush()
}

func newProfileCmd(a *app) *cobra.Command {
	var name, avatar string
	var age int

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change your name, age or avatar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var upd models.ProfileUpdate
			if cmd.Flags().Changed("name") {
				upd.Name = &name
			}
			if cmd.Flags().Changed("avatar") {
				upd.Avatar = &avatar
			}
			if cmd.Flags().Changed("age") {
				upd.Age = &age
			}
			if upd.IsEmpty() {
				return errors.New("nothing to change: pass --name, --age or --avatar")
			}

			sess, client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			profile, err := client.UpdateProfile(cmd.Context(), sess.UserID, upd)
			if err != nil {
				return err
			}
			printProfile(cmd, profile)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "avatar (giraffe, elephant, bear, tiger)")
	cmd.Flags().IntVar(&age, "age", 0, "age in years")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List points earned in recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, client, err := a.client(cmd.Context())
			if err != nil {
				return err
			}
			records, err := client.History(cmd.Context(), sess.UserID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				printf(cmd.OutOrStdout(), "No reading sessions yet.\n")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "WHEN\tPOINTS\tTOTAL\n")
			for _, r := range records {
				printf(w, "%s\t%+d\t%d\n", r.RecordedAt.Local().Format("2006-01-02 15:04"), r.Points, r.TotalAfter)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of entries")
	return cmd
}
