package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cogconvo/captioner/internal/timeline"
	"github.com/cogconvo/captioner/internal/wire"
	"github.com/cogconvo/captioner/pkg/core"
)

var clientCmd = &cobra.Command{
	Use:   "client host:port",
	Short: "Connect to a caption server and print the messages",
	Long: `Stands in for the glasses: connects to a caption server and prints every
caption message until the server hangs up. The argument may be the QR code
text, e.g. "192.168.1.20:65432 9".`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runClient,
}

var clientWidth int

func init() {
	clientCmd.Flags().IntVarP(&clientWidth, "width", "w", 0, "render the rolling two-line caption wrapped at this many characters instead of raw messages")
}

func runClient(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	addr := strings.Fields(args[0])[0]
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	show := printMessage
	if clientWidth > 0 {
		show = rollingText(clientWidth)
	}
	n, err := printCaptions(conn, cmd.OutOrStdout(), show)
	Logger.Info("Server closed the connection", "messages", n)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// printCaptions decodes caption messages from r until a clean EOF and hands
// each to show.
func printCaptions(r io.Reader, w io.Writer, show func(io.Writer, core.CaptionMessage) error) (int, error) {
	dec := wire.NewDecoder(r, wire.DefaultMaxFrameSize)
	for n := 0; ; n++ {
		var msg core.CaptionMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if err := show(w, msg); err != nil {
			return n, err
		}
	}
}

func printMessage(w io.Writer, msg core.CaptionMessage) error {
	out, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n-----------------------------\n", out)
	return err
}

// rollingText prints what the glasses show: the last two lines of the
// current utterance. A message resent for a focus change repeats its chunk
// and adds no word.
func rollingText(width int) func(io.Writer, core.CaptionMessage) error {
	var words timeline.Words
	last := [2]int{-1, -1}
	return func(w io.Writer, msg core.CaptionMessage) error {
		if id := [2]int{msg.MessageID, msg.ChunkID}; id != last {
			last = id
			words.Add(msg.Text, msg.SpeakerID)
		}
		speaker, text := words.Text(width)
		focus := "none"
		if f := msg.Focused(); f.IsSet() {
			focus = string(f)
		}
		_, err := fmt.Fprintf(w, "[%s, focus %s]\n%s\n\n", speaker, focus, text)
		return err
	}
}
