// Command mercuryd is a demo daemon wiring NA, HG-Core, the address book,
// and the management server together: the RPC-transport analogue of
// app/main.go's reverse-proxy daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mercury-hpc/mercury-go/addrbook"
	"github.com/mercury-hpc/mercury-go/hg"
	"github.com/mercury-hpc/mercury-go/mgmt"
	"github.com/mercury-hpc/mercury-go/na"
	_ "github.com/mercury-hpc/mercury-go/na/natcp"
)

var opts struct {
	Listen       string `short:"l" long:"listen" env:"LISTEN" default:"tcp+tcp://0.0.0.0:4441" description:"na address string to listen on"`
	ContextID    int    `long:"context-id" env:"CONTEXT_ID" default:"-1" description:"routing id for this process's context, -1 for none"`
	PostCount    int    `long:"post-count" env:"POST_COUNT" default:"16" description:"unexpected-receive slots kept posted at all times"`
	TriggerBatch int    `long:"trigger-batch" env:"TRIGGER_BATCH" default:"64" description:"max completions drained per Trigger call"`

	Peers struct {
		File            string        `long:"file" env:"FILE" default:"peers.yml" description:"YAML static peer list"`
		ResolveInterval time.Duration `long:"resolve-interval" env:"RESOLVE_INTERVAL" default:"30s" description:"re-resolution interval"`
		Retries         int           `long:"retries" env:"RETRIES" default:"5" description:"lookup retry attempts"`
		RetryDelay      time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"500ms" description:"delay between lookup retries"`
	} `group:"peers" namespace:"peers" env-namespace:"PEERS"`

	Management struct {
		Enabled bool   `long:"enabled" env:"ENABLED" description:"enable management server"`
		Listen  string `long:"listen" env:"LISTEN" default:"127.0.0.1:8711" description:"management server listen address"`
	} `group:"mgmt" namespace:"mgmt" env-namespace:"MGMT"`

	Trace struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotating wire-trace log"`
		File       string `long:"file" env:"FILE" default:"wire-trace.log" description:"wire-trace log file"`
		MaxSize    int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max size in MB before rotation"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"max rotated files retained"`
	} `group:"trace" namespace:"trace" env-namespace:"TRACE"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("mercuryd %s\n", revision)

	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	p.SubcommandsOptional = true
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg)
	log.Printf("[DEBUG] options: %+v", opts)

	if err := run(); err != nil {
		log.Fatalf("[ERROR] mercuryd failed, %v", err)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	trace, err := makeTraceLogger()
	if err != nil {
		return fmt.Errorf("failed to set up wire-trace log: %w", err)
	}

	naClass, err := na.Initialize(opts.Listen, true)
	if err != nil {
		return fmt.Errorf("failed to initialize na class for %q: %w", opts.Listen, err)
	}
	defer func() {
		if e := naClass.Finalize(); e != nil {
			log.Printf("[WARN] na class finalize: %v", e)
		}
	}()

	if self, selfErr := naClass.AddrSelf(); selfErr == nil {
		if s, strErr := naClass.AddrToString(self); strErr == nil {
			log.Printf("[INFO] listening on %s", s)
		}
		naClass.AddrFree(self)
	}

	hgClass := hg.NewClass(naClass)
	registerDemoRPCs(hgClass, trace)

	hgCtx, status := hgClass.NewContext(contextOptions())
	if !status.OK() {
		return fmt.Errorf("failed to create hg context: %w", status)
	}

	if status := hgCtx.Post(opts.PostCount, true); !status.OK() {
		return fmt.Errorf("failed to post initial receive slots: %w", status)
	}

	metrics := mgmt.NewMetrics()

	book, bookErr := makeAddrBook(naClass)
	if bookErr != nil {
		log.Printf("[WARN] addrbook: %v", bookErr)
		book = addrbook.New(naClass, nil, opts.Peers.ResolveInterval, opts.Peers.Retries, opts.Peers.RetryDelay)
	}
	go func() {
		if e := book.Run(ctx); e != nil && !errors.Is(e, context.Canceled) {
			log.Printf("[WARN] addrbook run stopped, %v", e)
		}
	}()

	if opts.Management.Enabled {
		go func() {
			mgSrv := mgmt.Server{
				Listen:  opts.Management.Listen,
				Book:    book,
				Metrics: metrics,
				Version: revision,
			}
			if e := mgSrv.Run(ctx); e != nil {
				log.Printf("[WARN] management server failed, %v", e)
			}
		}()
	}

	return serveLoop(ctx, hgCtx)
}

// serveLoop repeatedly drains the context's completion queue, the same
// blocking-Trigger-in-a-loop shape every hg test fixture uses to drive
// progress, here run forever instead of a bounded number of times.
func serveLoop(ctx context.Context, hgCtx *hg.Context) error {
	naCtx := hgCtx.NAContext()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] shutting down serve loop")
			return hgCtx.Destroy()
		default:
		}
		naCtx.Trigger(opts.TriggerBatch, 200, nil)
	}
}

func contextOptions() na.ContextOptions {
	if opts.ContextID < 0 {
		return na.ContextOptions{}
	}
	return na.ContextOptions{ID: uint8(opts.ContextID), HasID: true}
}

func makeAddrBook(cls *na.Class) (*addrbook.Book, error) {
	if _, statErr := os.Stat(opts.Peers.File); statErr != nil {
		return nil, fmt.Errorf("peers file %s: %w", opts.Peers.File, statErr)
	}
	cfg, err := addrbook.LoadFile(opts.Peers.File)
	if err != nil {
		return nil, err
	}
	return addrbook.New(cls, cfg.Peers, opts.Peers.ResolveInterval, opts.Peers.Retries, opts.Peers.RetryDelay), nil
}

func makeTraceLogger() (log.L, error) {
	if !opts.Trace.Enabled {
		return log.Std, nil
	}
	writer := &lumberjack.Logger{
		Filename:   opts.Trace.File,
		MaxSize:    opts.Trace.MaxSize,
		MaxBackups: opts.Trace.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}
	return log.New(log.Out(writer), log.Msec, log.LevelBraces), nil
}

func setupLog(dbg bool) {
	if dbg {
		log.Setup(log.Debug, log.CallerFile, log.CallerFunc, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
