package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	openpush "github.com/openpush/go-openpush-api"
	"github.com/openpush/go-openpush-api/store"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "connect to the relay and deliver notifications until interrupted",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "on-message",
				Usage:   "shell command run for each notification",
				EnvVars: []string{"OPENPUSH_ON_MESSAGE"},
			},
			&cli.DurationFlag{
				Name:  "emergency-retry",
				Usage: "re-alert cadence for unacknowledged emergency messages",
				Value: openpush.DefaultEmergencyRetry,
			},
		},

		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	m.AddErrorHandler(http.StatusUpgradeRequired, func() {
		logrus.Error("This client version is no longer supported, please update")
	})

	client := m.NewClient(creds)
	defer client.Close()

	session := client.NewSession(newExecSink(c.String("on-message")), st,
		openpush.WithCredentialStore(st),
		openpush.WithEmergencyRetry(c.Duration("emergency-retry")),
	)

	go logEvents(session.Events())

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logrus.WithError(err).Debug("Failed to notify service manager")
	}

	defer func() {
		if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
			logrus.WithError(err).Debug("Failed to notify service manager")
		}
	}()

	if err := session.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func logEvents(events <-chan openpush.Event) {
	for event := range events {
		entry := logrus.WithField("event", event.Kind)

		if event.Err != nil {
			entry = entry.WithError(event.Err)
		}

		if event.Receipt != "" {
			entry = entry.WithField("receipt", event.Receipt)
		}

		switch event.Kind {
		case openpush.EventConnected:
			entry.Info("Connected to the relay feed")

		case openpush.EventDisconnected:
			entry.Info("Disconnected from the relay feed")

		case openpush.EventCredentialsRevoked:
			entry.Warn("Relay revoked this device's credentials; run \"openpush login\" again")

		case openpush.EventSessionSuperseded:
			entry.Warn("Another session took over this device")

		case openpush.EventEmergencyExpired:
			entry.Warn("Emergency message expired without acknowledgment")
		}
	}
}

// execSink logs each message and optionally hands it to a user command, the
// usual bridge to desktop notification tools.
type execSink struct {
	command string
}

func newExecSink(command string) execSink {
	return execSink{command: command}
}

func (s execSink) Display(msg openpush.Message) {
	logrus.WithFields(logrus.Fields{
		"id":       msg.ID,
		"app":      msg.AppName,
		"priority": msg.Priority,
	}).Info(msg.DisplayTitle() + ": " + msg.Body)

	if s.command == "" {
		return
	}

	cmd := exec.Command("/bin/sh", "-c", s.command)

	cmd.Env = append(os.Environ(),
		"OPENPUSH_ID="+strconv.FormatInt(msg.ID, 10),
		"OPENPUSH_APP="+msg.AppName,
		"OPENPUSH_TITLE="+msg.DisplayTitle(),
		"OPENPUSH_BODY="+msg.Body,
		"OPENPUSH_PRIORITY="+strconv.Itoa(int(msg.Priority)),
		"OPENPUSH_RECEIPT="+msg.Receipt,
		"OPENPUSH_URL="+msg.URL,
	)

	// Display must not block the session.
	go func() {
		if out, err := cmd.CombinedOutput(); err != nil {
			logrus.WithError(err).WithField("output", string(out)).Warn("Notification command failed")
		}
	}()
}
