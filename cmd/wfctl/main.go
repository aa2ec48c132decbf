// Command wfctl invokes workflow service methods from the command line.
//
// Usage:
//
//	wfctl [flags] call <Method> [json]
//	wfctl [flags] cron <expression> [count]
//
// The call subcommand sends the protojson encoded request to Method and
// prints the protojson encoded reply. The request defaults to an empty
// message. The cron subcommand prints the next activations of a schedule.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"goa.design/goa-temporal/features/ratelimit"
	"goa.design/goa-temporal/runtime/client"
	"goa.design/goa-temporal/runtime/cron"
	"goa.design/goa-temporal/runtime/interceptors"
	"goa.design/goa-temporal/runtime/rpc"
	"goa.design/goa-temporal/runtime/telemetry"
)

func main() {
	var (
		configF    = flag.String("config", "", "Path to the YAML client configuration")
		addressF   = flag.String("address", "", "Server address (overrides configuration)")
		namespaceF = flag.String("namespace", "", "Namespace (overrides configuration)")
		timeoutF   = flag.Duration("timeout", 0, "Call timeout (overrides configuration)")
		rateF      = flag.Float64("rate", 0, "Maximum calls per minute, 0 disables rate limiting")
		redisF     = flag.String("redis", "", "Redis address used to share the rate budget between processes")
		dbgF       = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Usage = usage
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "call":
		err = runCall(ctx, args[1:], callFlags{
			config:    *configF,
			address:   *addressF,
			namespace: *namespaceF,
			timeout:   *timeoutF,
			rate:      *rateF,
			redis:     *redisF,
		}, os.Stdout)
	case "cron":
		err = runCron(args[1:], time.Now(), os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf(ctx, err, "wfctl %s", args[0])
	}
}

type callFlags struct {
	config    string
	address   string
	namespace string
	timeout   time.Duration
	rate      float64
	redis     string
}

func runCall(ctx context.Context, args []string, f callFlags, w io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: call <Method> [json]")
	}
	method := args[0]
	req, err := decodeRequest(method, args[1:])
	if err != nil {
		return err
	}

	cfg, err := client.LoadConfig(f.config)
	if err != nil {
		return err
	}
	if f.address != "" {
		cfg.Address = f.address
	}
	if f.namespace != "" {
		cfg.Namespace = f.namespace
	}
	if f.timeout > 0 {
		cfg.Timeout = f.timeout
	}

	logger := telemetry.NewClueLogger()
	pipeline := []rpc.Interceptor{
		interceptors.Tracing(telemetry.NewClueTracer()),
		interceptors.Logging(logger),
		interceptors.RequestID(),
	}
	if f.rate > 0 {
		limiter, closeLimiter, err := newLimiter(ctx, f, logger)
		if err != nil {
			return err
		}
		defer closeLimiter()
		pipeline = append(pipeline, limiter.Interceptor())
		boundRetries(cfg)
	}

	c, err := client.DialConfig(cfg, client.Options{
		Pipeline: rpc.NewPipeline(pipeline...),
		Logger:   logger,
		Metrics:  telemetry.NewClueMetrics(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "close client"})
		}
	}()

	res, err := c.Invoke(ctx, method, req, cfg.CallContext(nil))
	if err != nil {
		return err
	}
	out, err := protojson.MarshalOptions{Multiline: true}.Marshal(res.(proto.Message))
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// decodeRequest builds the request message of method from its protojson form.
func decodeRequest(method string, args []string) (proto.Message, error) {
	in, _, err := client.MessageTypes("", method)
	if err != nil {
		return nil, err
	}
	req := in.New().Interface()
	if len(args) == 1 && args[0] != "" {
		if err := protojson.Unmarshal([]byte(args[0]), req); err != nil {
			return nil, fmt.Errorf("decode %s request: %w", method, err)
		}
	}
	return req, nil
}

func newLimiter(ctx context.Context, f callFlags, logger telemetry.Logger) (*ratelimit.AdaptiveLimiter, func(), error) {
	opts := ratelimit.Options{
		InitialRate: f.rate,
		Logger:      logger,
		Metrics:     telemetry.NewClueMetrics(),
	}
	if f.redis == "" {
		return ratelimit.New(ctx, opts), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: f.redis})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	m, err := rmap.Join(ctx, "wfctl-ratelimit", rdb)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("join rate limit map: %w", err)
	}
	opts.Map = m
	opts.Key = "calls"
	return ratelimit.New(ctx, opts), func() {
		m.Close()
		_ = rdb.Close()
	}, nil
}

// rateLimitedAttempts bounds retries when the rate limiter is enabled.
const rateLimitedAttempts = 5

// boundRetries caps the attempt budget of cfg when it is unlimited. The rate
// limiter sits outside the retry loop and only observes RESOURCE_EXHAUSTED
// once the retries of a call are exhausted.
func boundRetries(cfg *client.Config) {
	if cfg.Retry == nil {
		cfg.Retry = &client.RetryConfig{}
	}
	if cfg.Retry.MaximumAttempts == 0 {
		cfg.Retry.MaximumAttempts = rateLimitedAttempts
	}
}

func runCron(args []string, now time.Time, w io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: cron <expression> [count]")
	}
	s, err := cron.Parse(args[0])
	if err != nil {
		return err
	}
	n := 5
	if len(args) == 2 {
		if n, err = strconv.Atoi(args[1]); err != nil || n < 1 {
			return fmt.Errorf("invalid count %q", args[1])
		}
	}
	for _, t := range s.Upcoming(now, n) {
		if _, err := fmt.Fprintln(w, t.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  call <Method> [json]       invoke a workflow service method
  cron <expression> [count]  print the next activations of a cron schedule

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}
