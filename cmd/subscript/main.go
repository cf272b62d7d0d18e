package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/subscript/codec"
	"github.com/wippyai/subscript/dispatch"
	"github.com/wippyai/subscript/metadata"
	"github.com/wippyai/subscript/transport"
	"github.com/wippyai/subscript/transport/httprpc"
	"github.com/wippyai/subscript/transport/wsrpc"
	"github.com/wippyai/subscript/types"
)

type options struct {
	url       string
	typesFile string
	list      bool
	call      string
	args      string
	submit    bool
	wait      string
	storage   string
	keys      string
	at        string
	constant  string
	decode    string
	data      string
	timeout   time.Duration
	verbose   bool
}

func main() {
	var o options
	flag.StringVar(&o.url, "url", "ws://127.0.0.1:9944", "Node endpoint (ws://, wss://, http:// or https://)")
	flag.StringVar(&o.typesFile, "types", "", "YAML file with custom type definitions")
	flag.BoolVar(&o.list, "list", false, "List modules with their calls, storage and constants")
	flag.StringVar(&o.call, "call", "", "Call to encode (Module.function)")
	flag.StringVar(&o.args, "args", "", "Call arguments as a JSON array")
	flag.BoolVar(&o.submit, "submit", false, "Submit the call as an unsigned extrinsic")
	flag.StringVar(&o.wait, "wait", "in-block", "Submission wait mode (in-block, outcome, finalized)")
	flag.StringVar(&o.storage, "storage", "", "Storage item to read (Module.Item)")
	flag.StringVar(&o.keys, "keys", "", "Storage map keys as a JSON array")
	flag.StringVar(&o.at, "at", "", "Block hash to read storage at")
	flag.StringVar(&o.constant, "const", "", "Constant to show (Module.Name)")
	flag.StringVar(&o.decode, "decode", "", "Type to decode -data as")
	flag.StringVar(&o.data, "data", "", "Hex data for -decode")
	flag.DurationVar(&o.timeout, "timeout", 2*time.Minute, "Overall deadline")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if !o.list && o.call == "" && o.storage == "" && o.constant == "" && o.decode == "" && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: subscript [-url endpoint] [-types file.yaml] -list")
		fmt.Fprintln(os.Stderr, "       subscript -call Module.function [-args '[...]'] [-submit]")
		fmt.Fprintln(os.Stderr, "       subscript -storage Module.Item [-keys '[...]'] [-at 0x...]")
		fmt.Fprintln(os.Stderr, "       subscript -const Module.Name")
		fmt.Fprintln(os.Stderr, "       subscript -decode Type -data 0x...")
		fmt.Fprintln(os.Stderr, "       subscript -i  (interactive mode)")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if o.verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}
	defer logger.Sync()
	dispatch.SetLogger(logger)
	metadata.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	sess, closer, err := connect(ctx, o, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closer()

	if *interactive {
		err = runInteractive(sess, o.url)
	} else {
		err = run(ctx, sess, o)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect opens a transport for the endpoint scheme and a session over it.
func connect(ctx context.Context, o options, logger *zap.Logger) (*dispatch.Session, func(), error) {
	var (
		t      transport.Transport
		closer = func() {}
	)
	switch {
	case strings.HasPrefix(o.url, "ws://"), strings.HasPrefix(o.url, "wss://"):
		c, err := wsrpc.Dial(ctx, o.url, wsrpc.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		t, closer = c, func() { c.Close() }
	case strings.HasPrefix(o.url, "http://"), strings.HasPrefix(o.url, "https://"):
		t = httprpc.New(o.url, httprpc.WithLogger(logger))
	default:
		return nil, nil, fmt.Errorf("unsupported endpoint %q", o.url)
	}

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if o.typesFile != "" {
		data, err := os.ReadFile(o.typesFile)
		if err != nil {
			closer()
			return nil, nil, fmt.Errorf("read types: %w", err)
		}
		doc, err := types.LoadDocument(data)
		if err != nil {
			closer()
			return nil, nil, err
		}
		opts = append(opts, dispatch.WithCustomTypes(doc))
	}

	sess, err := dispatch.Open(ctx, t, opts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return sess, closer, nil
}

func run(ctx context.Context, sess *dispatch.Session, o options) error {
	out := newPrinter(os.Stdout)

	if o.list {
		out.modules(sess.Metadata())
		return nil
	}

	if o.decode != "" {
		data, err := transport.DecodeHex(o.data)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		v, err := sess.Decode(o.decode, data)
		if err != nil {
			return err
		}
		return out.yaml(v)
	}

	if o.constant != "" {
		mod, name, err := splitName(o.constant)
		if err != nil {
			return err
		}
		v, err := sess.Metadata().ConstantValue(mod, name)
		if err != nil {
			return err
		}
		return out.yaml(v)
	}

	if o.storage != "" {
		return readStorage(ctx, sess, o, out)
	}

	return encodeCall(ctx, sess, o, out)
}

func readStorage(ctx context.Context, sess *dispatch.Session, o options, out *printer) error {
	mod, item, err := splitName(o.storage)
	if err != nil {
		return err
	}
	keys, err := codec.FromJSONArgs([]byte(o.keys))
	if err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	if o.at != "" {
		at, err := transport.DecodeHex(o.at)
		if err != nil {
			return fmt.Errorf("at: %w", err)
		}
		e, err := sess.StorageAt(ctx, at, mod, item, keys...)
		if err != nil {
			return err
		}
		return out.entry(e)
	}
	e, err := sess.Storage(ctx, mod, item, keys...)
	if err != nil {
		return err
	}
	return out.entry(e)
}

func encodeCall(ctx context.Context, sess *dispatch.Session, o options, out *printer) error {
	mod, fn, err := splitName(o.call)
	if err != nil {
		return err
	}
	args, err := codec.FromJSONArgs([]byte(o.args))
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}
	call, err := sess.BuildCall(mod, fn, args...)
	if err != nil {
		return err
	}
	xt, err := sess.UnsignedExtrinsic(call)
	if err != nil {
		return err
	}
	out.call(call, xt)

	if !o.submit {
		return nil
	}
	wait, err := parseWait(o.wait)
	if err != nil {
		return err
	}
	res, err := sess.Submit(ctx, xt, dispatch.WithWait(wait))
	if err != nil {
		return err
	}
	return out.result(res)
}

// splitName splits "Module.Item".
func splitName(s string) (string, string, error) {
	mod, item, ok := strings.Cut(s, ".")
	if !ok || mod == "" || item == "" {
		return "", "", fmt.Errorf("expected Module.Name, got %q", s)
	}
	return mod, item, nil
}

func parseWait(s string) (dispatch.WaitMode, error) {
	for _, m := range []dispatch.WaitMode{dispatch.WaitInBlock, dispatch.WaitOutcome, dispatch.WaitFinalized} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown wait mode %q", s)
}
