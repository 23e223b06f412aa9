package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"findit/internal/domain"
	"findit/internal/usecase"
)

var chatVoiceOut string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive search session",
	Long: `Start an interactive session. Each line is a query; commands start with a slash:

  /audio <file.wav>   search with a voice recording
  /narrate on|off     toggle narration of captions
  /history            list previous turns
  /quit               leave the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatVoiceOut, "voice-out", "", "directory to write narration WAV files")
}

// ChatLog is the append-only history of a session. The pipeline never sees it.
type ChatLog struct {
	mu    sync.RWMutex
	turns []domain.ChatTurn
}

func (l *ChatLog) Append(t domain.ChatTurn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns, t)
}

// Turns returns a copy of the history in order.
func (l *ChatLog) Turns() []domain.ChatTurn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

func (l *ChatLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

type turnRunner interface {
	Run(ctx context.Context, in usecase.Input) (*domain.RetrievalResult, error)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	svc, err := buildServices(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer svc.Close()

	p, err := svc.pipeline(cmd.Context())
	if err != nil {
		return err
	}

	s := &chatSession{
		runner:   p,
		log:      &ChatLog{},
		out:      cmd.OutOrStdout(),
		narrate:  cfg.Retrieve.Narrate,
		voiceOut: chatVoiceOut,
	}
	fmt.Fprintln(s.out, "findit chat. Type a query, or /quit to leave.")
	return s.loop(cmd.Context(), cmd.InOrStdin())
}

type chatSession struct {
	runner   turnRunner
	log      *ChatLog
	out      io.Writer
	narrate  bool
	voiceOut string
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.command(ctx, line); quit {
				return nil
			}
			continue
		}
		s.turn(ctx, usecase.Input{Text: line})
	}
}

// command handles a slash command and reports whether the session should end.
func (s *chatSession) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/narrate":
		switch arg {
		case "on":
			s.narrate = true
		case "off":
			s.narrate = false
		default:
			fmt.Fprintln(s.out, "usage: /narrate on|off")
			return false
		}
		fmt.Fprintf(s.out, "narration %s\n", arg)
	case "/audio":
		if arg == "" {
			fmt.Fprintln(s.out, "usage: /audio <file.wav>")
			return false
		}
		audio, err := os.ReadFile(arg)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		s.turn(ctx, usecase.Input{Audio: audio, AudioFormat: audioFormat(arg)})
	case "/history":
		for i, t := range s.log.Turns() {
			status := "ok"
			if t.Err != nil {
				status = "error: " + t.Err.Error()
			} else if t.Result != nil {
				status = fmt.Sprintf("%d images", len(t.Result.Images))
			}
			fmt.Fprintf(s.out, "%3d  %s  %q  %s\n", i+1, t.At.Format(time.TimeOnly), t.Query.Text, status)
		}
	default:
		fmt.Fprintf(s.out, "unknown command %s\n", name)
	}
	return false
}

func (s *chatSession) turn(ctx context.Context, in usecase.Input) {
	in.Narrate = s.narrate
	res, err := s.runner.Run(ctx, in)

	t := domain.ChatTurn{Result: res, Err: err, At: time.Now()}
	switch {
	case res != nil:
		t.Query = res.Query
	case in.Text != "":
		t.Query = domain.Query{Text: strings.TrimSpace(in.Text), Origin: domain.OriginTyped}
	default:
		t.Query = domain.Query{Origin: domain.OriginTranscribed}
	}
	s.log.Append(t)

	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}

	var files []string
	if s.voiceOut != "" && len(res.Audio) > 0 {
		dir := filepath.Join(s.voiceOut, fmt.Sprintf("turn_%d", s.log.Len()))
		if files, err = saveNarrations(dir, res); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	printResult(s.out, res, files)
}
