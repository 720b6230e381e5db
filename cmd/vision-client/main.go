package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/BrandenXMachi/poker-gto-vision/internal/client"
	"github.com/BrandenXMachi/poker-gto-vision/internal/tui"
)

var CLI struct {
	Server string  `short:"s" default:"ws://localhost:8000/ws" help:"Analysis server URL"`
	Frames string  `short:"f" required:"" help:"Directory of encoded frames to stream (jpg/png)"`
	FPS    float64 `default:"5" help:"Frame streaming rate"`
	Loop   bool    `help:"Loop the frame sequence"`
	Watch  bool    `short:"w" help:"Show the live monitor TUI"`
	Debug  bool    `short:"d" help:"Enable debug logging"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logger := log.New(os.Stderr)
	if CLI.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if CLI.Watch {
		// The TUI owns the terminal; keep log noise out of it.
		logger.SetLevel(log.ErrorLevel)
	}

	frames, err := loadFramePaths(CLI.Frames)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		kctx.Exit(1)
	}
	if len(frames) == 0 {
		fmt.Printf("Error: no frames found under %s\n", CLI.Frames)
		kctx.Exit(1)
	}

	c, err := client.New(CLI.Server, client.Options{Logger: logger})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		kctx.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Run(ctx)
	})

	var program *tea.Program
	if CLI.Watch {
		program = tea.NewProgram(tui.NewModel(c.Events()), tea.WithAltScreen())
	}

	g.Go(func() error {
		return streamFrames(ctx, c, frames, program)
	})

	if CLI.Watch {
		g.Go(func() error {
			defer cancel()
			_, err := program.Run()
			return err
		})
	} else {
		g.Go(func() error {
			printEvents(c.Events())
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("client stopped", "error", err)
		kctx.Exit(1)
	}
}

// loadFramePaths collects the encoded frames in capture order
// (lexicographic filename order).
func loadFramePaths(dir string) ([]string, error) {
	var paths []string
	for _, pattern := range []string{"*.jpg", "*.jpeg", "*.png"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)
	return paths, nil
}

// streamFrames plays the frame sequence at the configured rate. Send
// is best-effort: the client replaces a stale pending frame rather
// than queueing.
func streamFrames(ctx context.Context, c *client.Client, paths []string, program *tea.Program) error {
	fps := CLI.FPS
	if fps <= 0 {
		fps = 5
	}
	interval := time.Duration(float64(time.Second) / fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if i >= len(paths) {
			if !CLI.Loop {
				return nil
			}
			i = 0
		}

		data, err := os.ReadFile(paths[i])
		i++
		if err != nil {
			// A missing or unreadable file is skipped like a bad frame.
			continue
		}

		c.SendFrame(data)
		if program != nil {
			program.Send(tui.FrameSentMsg{})
		}
	}
}

func printEvents(events <-chan client.Event) {
	for ev := range events {
		switch ev.Kind {
		case client.EventConnected:
			fmt.Println("connected")
		case client.EventDisconnected:
			fmt.Printf("disconnected: %v\n", ev.Err)
		case client.EventTerminalFailure:
			fmt.Printf("FAILED: %s\n", ev.Message)
		case client.EventStatus:
			fmt.Printf("status: %s\n", ev.Message)
		case client.EventRecommendation:
			rec := ev.Recommendation
			fmt.Printf(">>> #%d %s | pot %s | ev %s | %s\n",
				ev.Seq, rec.Action, rec.PotSize, rec.EV, rec.Reasoning)
		}
	}
}
