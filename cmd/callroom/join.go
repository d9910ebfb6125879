package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/mossy-p/callroom/config"
	"github.com/mossy-p/callroom/internal/client"
	"github.com/mossy-p/callroom/internal/models"
	"github.com/mossy-p/callroom/internal/peer"
	"github.com/mossy-p/callroom/internal/ui"
)

var (
	flagServer string
	flagSTUN   string
	flagTURN   string
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room and chat or call its members",
	Long: `Join a room and chat or call its members.

Commands inside the room:
  /call <id> [audio|video]   ask a member for a call (video by default)
  /accept, /reject           answer the pending call request
  /mute, /video              toggle the local microphone or camera
  /end                       hang up
  /image <path>              share an image
  /videofile <path>          share a video clip
  /leave, /quit              leave the room and exit
Any other line is sent as a chat message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(cmd.Context(), args[0])
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "", "signaling server websocket URL (env SIGNAL_URL)")
	joinCmd.Flags().StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	joinCmd.Flags().StringVar(&flagTURN, "turn", "", "TURN server URL (env TURN_SERVER)")
	rootCmd.AddCommand(joinCmd)
}

func joinRoom(parent context.Context, roomID string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	cfg := config.LoadClient(config.ClientOptions{
		SignalURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
	})

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.Dial(dialCtx, cfg.SignalURL)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	ctrl := peer.NewController(c, peer.SyntheticSource{}, peer.NewPionFactory(cfg), slog.Default())
	ctrl.OnRemoteTrack(func(kind webrtc.RTPCodecType) {
		ui.PrintInfof("receiving remote %s", kind)
	})

	room := client.NewRoom(c, ctrl, roomID, slog.Default())
	go room.Run(ctx)
	if err := room.Join(); err != nil {
		return err
	}

	fmt.Println(ui.Banner(roomID, c.ID()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			leave(room)
			return nil

		case n, ok := <-room.Notices():
			if !ok {
				return nil
			}
			printNotice(n)

		case line, ok := <-lines:
			if !ok {
				leave(room)
				return nil
			}
			quit, err := runLine(ctx, room, strings.TrimSpace(line))
			if err != nil {
				ui.PrintError(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func leave(room *client.Room) {
	if err := room.Leave(); err != nil && !errors.Is(err, client.ErrClosed) {
		ui.PrintWarning("could not leave cleanly: " + err.Error())
	}
}

func printNotice(n client.Notice) {
	switch n.Kind {
	case client.NoticeChat:
		sender, text, found := strings.Cut(n.Text, ": ")
		if !found {
			ui.PrintChat(n.Text)
			return
		}
		ui.PrintChat(ui.SenderStyle.Render(sender) + " " + text)
	case client.NoticeCall:
		ui.PrintCall(n.Text)
	case client.NoticeError:
		ui.PrintError(n.Text)
	default:
		ui.PrintInfo(n.Text)
	}
}

// runLine executes one REPL line and reports whether the user is done.
func runLine(ctx context.Context, room *client.Room, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, room.Say(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/call":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /call <id> [audio|video]")
		}
		callType := models.CallVideo
		if len(fields) > 2 {
			callType = models.CallType(fields[2])
		}
		if err := room.Call(fields[1], callType); err != nil {
			return false, err
		}
		ui.PrintCall(fmt.Sprintf("calling %s...", fields[1]))

	case "/accept":
		return false, room.Accept(ctx)

	case "/reject":
		return false, room.Reject()

	case "/mute":
		muted, err := room.ToggleMute()
		if err != nil {
			return false, err
		}
		ui.PrintInfof("microphone muted: %t", muted)

	case "/video":
		on, err := room.ToggleVideo()
		if err != nil {
			return false, err
		}
		ui.PrintInfof("camera on: %t", on)

	case "/end":
		return false, room.EndCall()

	case "/image", "/videofile":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: %s <path>", fields[0])
		}
		return false, room.SendFile(strings.TrimSpace(strings.TrimPrefix(line, fields[0])))

	case "/leave", "/quit":
		return true, room.Leave()

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
