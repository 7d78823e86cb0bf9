package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/store"
)

// version is overridden at build time.
var version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "openpush",
		Usage:   "deliver openpush notifications to this machine",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "state",
				Usage:   "path to the state database",
				Value:   defaultStatePath(),
				EnvVars: []string{"OPENPUSH_STATE"},
			},
			&cli.StringFlag{
				Name:    "host-url",
				Usage:   "base URL of the relay's request channel",
				Value:   openpush.DefaultHostURL,
				EnvVars: []string{"OPENPUSH_HOST_URL"},
			},
			&cli.StringFlag{
				Name:    "feed-url",
				Usage:   "websocket URL of the relay's feed",
				Value:   openpush.DefaultFeedURL,
				EnvVars: []string{"OPENPUSH_FEED_URL"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log request channel traffic",
			},
		},

		Commands: []*cli.Command{
			loginCommand(),
			runCommand(),
			ackCommand(),
			logoutCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("Command failed")
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authenticate and register this machine as a device",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Usage:    "account email",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "device-name",
				Usage: "name under which to register this device",
				Value: defaultDeviceName(),
			},
		},

		Action: func(c *cli.Context) error {
			st, err := store.Open(c.String("state"))
			if err != nil {
				return err
			}
			defer st.Close()

			password, err := promptSecret("Password: ")
			if err != nil {
				return err
			}

			m := newManager(c)
			defer m.Close()

			req := openpush.LoginReq{
				Email:    c.String("email"),
				Password: password,
			}

			client, creds, err := m.NewClientWithLogin(c.Context, c.String("device-name"), req)
			if errors.Is(err, openpush.ErrTwoFARequired) {
				if req.TwoFA, err = promptSecret("Two-factor code: "); err != nil {
					return err
				}

				client, creds, err = m.NewClientWithLogin(c.Context, c.String("device-name"), req)
			}

			if err != nil {
				return err
			}
			defer client.Close()

			if err := st.Save(creds); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}

			logrus.WithField("deviceID", creds.DeviceID).Info("Device registered")

			return nil
		},
	}
}

func ackCommand() *cli.Command {
	return &cli.Command{
		Name:      "ack",
		Usage:     "acknowledge an emergency receipt",
		ArgsUsage: "<receipt>",

		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("expected exactly one receipt id")
			}

			receiptID := c.Args().First()

			st, err := store.Open(c.String("state"))
			if err != nil {
				return err
			}
			defer st.Close()

			creds, err := st.Load()
			if err != nil {
				return err
			}

			if creds.IsZero() {
				return errors.New("no stored credentials; run \"openpush login\" first")
			}

			m := newManager(c)
			defer m.Close()

			client := m.NewClient(creds)
			defer client.Close()

			if err := client.AcknowledgeReceipt(c.Context, receiptID); err != nil {
				return err
			}

			// A session running elsewhere re-reads this on restart.
			if err := st.DeleteAckState(receiptID); err != nil {
				logrus.WithError(err).Warn("Failed to drop local receipt state")
			}

			logrus.WithField("receipt", receiptID).Info("Receipt acknowledged")

			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored device credentials",

		Action: func(c *cli.Context) error {
			st, err := store.Open(c.String("state"))
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Clear(); err != nil {
				return err
			}

			logrus.Info("Credentials cleared")

			return nil
		},
	}
}

func newManager(c *cli.Context) *openpush.Manager {
	opts := []openpush.Option{
		openpush.WithHostURL(c.String("host-url")),
		openpush.WithFeedURL(c.String("feed-url")),
		openpush.WithAppVersion("openpush-cli_" + version),
	}

	if c.Bool("debug") {
		opts = append(opts, openpush.WithDebug(true), openpush.WithLogger(logrus.StandardLogger()))
	}

	return openpush.New(opts...)
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "openpush.db"
	}

	return filepath.Join(dir, "openpush", "state.db")
}

func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil {
		return "go-openpush"
	}

	return host
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	secret, err := term.ReadPassword(int(syscall.Stdin))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(secret)), nil
}
