package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/language"
	"murmur/internal/services"
)

// Transcript is a finished speech-to-text result.
type Transcript struct {
	Text     string
	Language string
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the whisper CLI. Each transcription is a fresh process, so
// Unload has nothing to release.
type Client struct {
	binary   string
	model    string
	language string
	timeout  time.Duration
	exec     Executor
}

// New constructs a whisper client from transcription settings.
func New(cfg config.Transcription, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		return nil, errors.New("transcription binary required")
	}
	client := &Client{
		binary:   binary,
		model:    strings.TrimSpace(cfg.Model),
		language: language.Normalize(cfg.Language),
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:     commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcribe runs the whisper CLI against one audio file. Progress lines on
// stdout are forwarded through the callback; the transcript is collected from
// the text output the CLI writes next to the audio file.
func (c *Client) Transcribe(ctx context.Context, audioPath string, progress func(fraction float64, stage string)) (Transcript, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Transcript{}, services.Wrap(services.ErrValidation, "whisper", "transcribe", "audio path required", nil)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return Transcript{}, services.Wrap(services.ErrValidation, "whisper", "transcribe", "audio file missing", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	outputBase := transcriptBase(audioPath)
	args := c.buildArgs(audioPath, outputBase)

	var (
		collected []string
		language  string
	)
	report := func(fraction float64, stage string) {
		if progress != nil {
			progress(fraction, stage)
		}
	}
	report(0, "starting")

	err := c.exec.Run(runCtx, c.binary, args, func(line string) {
		if fraction, ok := parseProgress(line); ok {
			report(fraction, "transcribing")
			return
		}
		if lang, ok := parseLanguage(line); ok {
			language = lang
			return
		}
		if text, ok := parseSegment(line); ok {
			collected = append(collected, text)
		}
	})
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return Transcript{}, services.Wrap(services.ErrTimeout, "whisper", "transcribe",
				fmt.Sprintf("run exceeded %s", c.timeout), err)
		}
		return Transcript{}, services.Wrap(services.ErrTransient, "whisper", "transcribe", "whisper run failed", err)
	}

	text, err := c.collectTranscript(outputBase, collected)
	if err != nil {
		return Transcript{}, err
	}
	report(1, "completed")

	if language == "" {
		language = c.language
	}
	return Transcript{Text: text, Language: language}, nil
}

// Unload satisfies the engine contract. The process-per-run client holds no
// resident model.
func (c *Client) Unload() {}

func (c *Client) buildArgs(audioPath, outputBase string) []string {
	args := []string{"--file", audioPath, "--output-txt", "--output-file", outputBase, "--print-progress"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	if c.language != "" {
		args = append(args, "--language", c.language)
	}
	return args
}

// collectTranscript prefers the text file the CLI wrote; segment lines scraped
// from stdout are the fallback when no file appears.
func (c *Client) collectTranscript(outputBase string, collected []string) (string, error) {
	outputPath := outputBase + ".txt"
	data, err := os.ReadFile(outputPath)
	if err == nil {
		defer os.Remove(outputPath)
		text := strings.TrimSpace(string(data))
		if text != "" {
			return text, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read transcript output: %w", err)
	}
	if len(collected) > 0 {
		return strings.TrimSpace(strings.Join(collected, " ")), nil
	}
	return "", services.Wrap(services.ErrValidation, "whisper", "transcribe", "no speech recognized", nil)
}

func transcriptBase(audioPath string) string {
	dir := filepath.Dir(audioPath)
	name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(dir, name)
}

// parseProgress extracts the completion fraction from whisper progress lines,
// for example "whisper_print_progress_callback: progress =  45%".
func parseProgress(line string) (float64, bool) {
	idx := strings.Index(line, "progress =")
	if idx < 0 {
		return 0, false
	}
	value := strings.TrimSpace(line[idx+len("progress ="):])
	value = strings.TrimSuffix(value, "%")
	percent, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || percent < 0 {
		return 0, false
	}
	if percent > 100 {
		percent = 100
	}
	return percent / 100, true
}

// parseLanguage extracts the detected language from lines such as
// "whisper_full_with_state: auto-detected language: en (p = 0.976553)".
func parseLanguage(line string) (string, bool) {
	idx := strings.Index(line, "auto-detected language:")
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[idx+len("auto-detected language:"):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// parseSegment extracts the spoken text from timestamped segment lines, for
// example "[00:00:00.000 --> 00:00:04.000]   Remember to call the plumber.".
func parseSegment(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	end := strings.Index(trimmed, "]")
	if end < 0 || !strings.Contains(trimmed[:end], "-->") {
		return "", false
	}
	text := strings.TrimSpace(trimmed[end+1:])
	if text == "" {
		return "", false
	}
	return text, true
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", binary, err)
	}
	return nil
}
