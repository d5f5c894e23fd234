package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lobo/internal/ipc"
)

var socketPath string

func main() {
	root := &cobra.Command{
		Use:           "lobo-ctl",
		Short:         "Control a running lobo-daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&socketPath, "socket", "s", ipc.DefaultSocketPath, "daemon control socket")

	root.AddCommand(
		triggerCmd(),
		sayCmd(),
		statusCmd(),
		pendingCmd(),
		transcribeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Push-to-talk: record one utterance and handle it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(ipc.Request{Cmd: "trigger"})
		},
	}
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>...",
		Short: "Speak the given text aloud",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(ipc.Request{Cmd: "say", Text: strings.Join(args, " ")})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show assistant status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(ipc.Request{Cmd: "status"})
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List commands awaiting confirmation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return exchange(ipc.Request{Cmd: "pending"})
		},
	}
}

func transcribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a wav/mp3/ogg file through the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The daemon resolves paths in its own working directory.
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return exchange(ipc.Request{Cmd: "transcribe", Path: path})
		},
	}
}

func exchange(req ipc.Request) error {
	resp, err := ipc.Send(socketPath, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.New(resp.Message)
	}

	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if len(resp.Data) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.Data, "", "  "); err != nil {
			fmt.Println(string(resp.Data))
		} else {
			fmt.Println(buf.String())
		}
	}
	return nil
}
