package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"lobo/internal/assistant"
	"lobo/internal/audio"
	"lobo/internal/bus"
	"lobo/internal/config"
	"lobo/internal/device"
	"lobo/internal/gate"
	"lobo/internal/ipc"
	"lobo/internal/memory"
	"lobo/internal/nlu"
	"lobo/internal/notify"
	"lobo/internal/proxy"
	"lobo/internal/speech"
	"lobo/internal/tts"
	"lobo/pkg/audioconv"
	"lobo/pkg/stt"
)

const (
	greeting = "Lobo activated. I'm listening for commands."
	farewell = "Lobo shutting down."
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	godotenv.Load(*envFile)
	cfg := config.Load()

	log.Debug("Loaded config", "model", cfg.OllamaModel, "wake_word", cfg.WakeWord)

	var httpClient *http.Client
	if cfg.SocksProxy != "" {
		var err error
		httpClient, err = proxy.HTTPClient(cfg.SocksProxy, 0)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.SocksProxy, "err", err)
			os.Exit(1)
		}
		log.Debug("Loaded proxy", "addr", cfg.SocksProxy)
	}

	planner := nlu.NewPlanner(nlu.NewClient(cfg.OllamaHost, httpClient), cfg.OllamaModel, cfg.ConfirmationKeyword, log.Default())
	{
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := planner.Healthcheck(hctx); err != nil {
			log.Warn("Model endpoint not reachable yet", "host", cfg.OllamaHost, "err", err)
		}
		cancel()
	}

	log.Debug("Loaded planner")

	rec := audio.NewRecorder(audio.Settings{})
	if err := rec.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer rec.Close()

	log.Debug("Loaded recorder")

	transcriber, err := newTranscriber(cfg, httpClient)
	if err != nil {
		log.Error("Failed to init transcriber", "engine", cfg.WhisperEngine, "err", err)
		os.Exit(1)
	}
	defer transcriber.Close()

	log.Debug("Loaded whisper", "engine", cfg.WhisperEngine)

	var speaker *tts.Engine
	if sp, err := tts.NewEngine(cfg.TTSVoice, cfg.TTSRate); err != nil {
		log.Warn("Speech output disabled", "err", err)
	} else {
		speaker = sp
		defer speaker.Close()
		log.Debug("Loaded speech", "voice", cfg.TTSVoice, "rate", cfg.TTSRate)
	}

	var chime *notify.Chime
	if c, err := notify.NewChime(cfg.ChimePath); err != nil {
		log.Warn("Chime disabled", "path", cfg.ChimePath, "err", err)
	} else {
		chime = c
	}

	executor := device.NewShellExecutor(log.Default())
	g := gate.New(executor,
		gate.WithKeyword(cfg.ConfirmationKeyword),
		gate.WithTimeout(cfg.CommandTimeout),
		gate.WithNotifier(notify.NewPrompter(speakerOrNil(speaker), log.Default())),
		gate.WithLogger(log.Default()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []assistant.Option{
		assistant.WithModelName(cfg.OllamaModel),
		assistant.WithQueueSize(cfg.QueueSize),
		assistant.WithLogger(log.Default()),
	}
	if speaker != nil {
		opts = append(opts, assistant.WithSpeaker(speaker))
	}
	if cfg.MemoryURL != "" {
		mem := memory.NewClient(cfg.MemoryURL, cfg.MemoryKey, log.Default())
		if err := mem.Health(ctx); err != nil {
			log.Warn("Memory service not reachable", "url", cfg.MemoryURL, "err", err)
		}
		if cfg.MemoryStreamURL != "" {
			go mem.Stream(ctx, cfg.MemoryStreamURL)
		}
		opts = append(opts, assistant.WithMemory(mem, cfg.MemoryContextLimit))
		log.Debug("Loaded memory", "url", cfg.MemoryURL)
	}

	asst := assistant.New(planner, g, opts...)
	go asst.Run(ctx)

	ducker := audio.NewDucker([]string{"lobo-daemon", "espeak", "espeak-ng"}, 10)

	listener := speech.NewListener(rec, transcriber, asst, cfg.WakeWord, cfg.MaxCommandLength, log.Default())
	if chime != nil {
		listener.SetChime(chime)
	}
	listener.SetDucker(ducker)
	if speaker != nil {
		listener.SetSpeaker(speaker)
	}
	go listener.Run(ctx)

	ipcServer, err := ipc.Serve(*socket, func(req ipc.Request) ipc.Response {
		return handleControl(ctx, req, rec, transcriber, chime, asst, g)
	}, log.Default())
	if err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}
	defer ipcServer.Close()

	if cfg.HubURL != "" {
		bridge := bus.NewBridge(cfg.HubURL, asst, transcriber, log.Default())
		go bridge.Run(ctx)
		log.Debug("Loaded hub bridge", "url", cfg.HubURL)
	}

	log.Info("Boot up - successful", "socket", *socket)

	if speaker != nil {
		if err := speaker.Speak(greeting); err != nil {
			log.Error("Greeting failed", "err", err)
		}
	}

	<-ctx.Done()

	log.Info("Shutting down")
	if speaker != nil {
		speaker.Speak(farewell)
	}
}

func newTranscriber(cfg config.Settings, httpClient *http.Client) (stt.Transcriber, error) {
	if cfg.WhisperEngine == "server" {
		return stt.NewServer(cfg.WhisperServerURL, cfg.Language, httpClient)
	}
	return stt.NewLocal(cfg.WhisperModel, stt.Options{Language: cfg.Language})
}

// speakerOrNil keeps a typed-nil *tts.Engine out of the Speaker interface.
func speakerOrNil(e *tts.Engine) notify.Speaker {
	if e == nil {
		return nil
	}
	return e
}

func handleControl(ctx context.Context, req ipc.Request, rec *audio.Recorder, tr stt.Transcriber, chime *notify.Chime, asst *assistant.Assistant, g *gate.Gate) ipc.Response {
	switch req.Cmd {
	case "trigger":
		return handleTrigger(ctx, rec, tr, chime, asst)

	case "say":
		if req.Text == "" {
			return ipc.Fail("nothing to say")
		}
		if err := asst.Say(req.Text); err != nil {
			return ipc.Fail("say: %v", err)
		}
		return ipc.Ok("said")

	case "status":
		return ipc.OkData("", asst.Status())

	case "pending":
		return ipc.OkData("", g.Pending())

	case "transcribe":
		if req.Path == "" {
			return ipc.Fail("missing audio path")
		}
		pcm, err := audioconv.FileToPCM16k(req.Path)
		if err != nil {
			return ipc.Fail("decode %s: %v", req.Path, err)
		}
		tctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		res, err := tr.Transcribe(tctx, pcm)
		if err != nil {
			return ipc.Fail("transcribe: %v", err)
		}
		return ipc.Ok(res.Text)

	default:
		log.Warn("Unknown command", "cmd", req.Cmd)
		return ipc.Fail("unknown command %q", req.Cmd)
	}
}

// handleTrigger is push-to-talk over the control socket: record one
// utterance, run it through the assistant, answer with the reply.
func handleTrigger(ctx context.Context, rec *audio.Recorder, tr stt.Transcriber, chime *notify.Chime, asst *assistant.Assistant) ipc.Response {
	if chime != nil {
		chime.Play()
	}
	notify.Desktop("Lobo", "Listening...")

	log.Info("Starting listening")

	pcm, err := rec.RecordAuto(ctx)
	if err != nil {
		return ipc.Fail("record: %v", err)
	}
	if len(pcm) == 0 {
		return ipc.Fail("heard nothing")
	}

	log.Info("Recorded", "samples", len(pcm))

	tctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	res, err := tr.Transcribe(tctx, pcm)
	if err != nil {
		return ipc.Fail("transcribe: %v", err)
	}

	log.Info("Transcribed", "text", res.Text)

	replyCh := make(chan string, 1)
	if !asst.Enqueue(assistant.Utterance{
		Text:    res.Text,
		Source:  "trigger",
		At:      time.Now(),
		ReplyCh: replyCh,
	}) {
		return ipc.Fail("assistant busy, try again")
	}

	select {
	case reply := <-replyCh:
		return ipc.Ok(reply)
	case <-time.After(90 * time.Second):
		return ipc.Fail("no reply in time")
	case <-ctx.Done():
		return ipc.Fail("shutting down")
	}
}
