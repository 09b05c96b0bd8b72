package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/five82/fridgewatch/internal/app"
	"github.com/five82/fridgewatch/internal/push"
)

type rootFlags struct {
	configPath  string
	prefsPath   string
	pollSeconds int
}

func (f *rootFlags) options() app.Options {
	return app.Options{ConfigPath: f.configPath, PrefsPath: f.prefsPath, PollEvery: f.pollSeconds}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "fridgewatch",
		Short: "Terminal dashboard for smart fridge sensors",
		Long: `fridgewatch shows live temperature and pressure for every fridge sensor,
charts their recent history and delivers over-temperature alerts as push
notifications.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), flags.options())
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/fridgewatch/config.toml)")
	root.PersistentFlags().StringVar(&flags.prefsPath, "prefs", "", "preferences file (default ~/.config/fridgewatch/prefs.toml)")
	root.PersistentFlags().IntVar(&flags.pollSeconds, "poll", 0, "status refresh interval in seconds (overrides config)")

	root.AddCommand(
		newAgentCmd(flags),
		newSubscribeCmd(flags),
		newVAPIDKeysCmd(),
		newPushTestCmd(flags),
	)
	return root
}

func newAgentCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run only the push receiver and print notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunAgent(cmd.Context(), flags.options(), cmd.OutOrStdout())
		},
	}
}

func newSubscribeCmd(flags *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Enable push notifications without opening the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompter := confirmPrompter()
			if yes {
				prompter = push.PromptFunc(func(context.Context) (bool, error) { return true, nil })
			}
			endpoint, err := app.Subscribe(cmd.Context(), flags.options(), prompter)
			if errors.Is(err, app.ErrPermissionDenied) {
				return fmt.Errorf("notifications blocked; run again and allow them")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed: %s\n", endpoint)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "allow notifications without asking")
	return cmd
}

// confirmPrompter asks on the terminal whether notifications may be shown.
func confirmPrompter() push.Prompter {
	return push.PromptFunc(func(ctx context.Context) (bool, error) {
		allow := true
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title("Allow fridgewatch to show notifications?").
				Description("You will be alerted when a fridge rises above its threshold.").
				Affirmative("Allow").
				Negative("Block").
				Value(&allow),
		))
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return false, nil
			}
			return false, err
		}
		return allow, nil
	})
}

func newVAPIDKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for sending test pushes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := webpush.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "public:  %s\n", pub)
			fmt.Fprintf(out, "private: %s\n", priv)
			return nil
		},
	}
}

func newPushTestCmd(flags *rootFlags) *cobra.Command {
	msg := app.TestPush{}
	cmd := &cobra.Command{
		Use:   "push-test",
		Short: "Send a notification to the local subscription",
		Long: `push-test encrypts a notification for the local subscription and posts it
to the receiver, exactly as the fridge server would. The VAPID key pair must
match the public key the subscription was created with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := app.SendTestPush(cmd.Context(), flags.configPath, msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "receiver answered %d %s\n", status, http.StatusText(status))
			if status >= 300 {
				return fmt.Errorf("push rejected with status %d", status)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&msg.Title, "title", "", "notification title")
	f.StringVar(&msg.Body, "body", "", "notification body")
	f.StringVar(&msg.URL, "url", "", "page to open on click")
	f.StringVar(&msg.VAPIDPublicKey, "vapid-public", "", "VAPID public key (base64url)")
	f.StringVar(&msg.VAPIDPrivateKey, "vapid-private", "", "VAPID private key (base64url)")
	f.StringVar(&msg.Subscriber, "subscriber", "", "VAPID subscriber contact")
	_ = cmd.MarkFlagRequired("vapid-public")
	_ = cmd.MarkFlagRequired("vapid-private")
	return cmd
}
