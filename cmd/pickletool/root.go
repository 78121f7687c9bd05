package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/pyrolite-go/pickle/internal/config"
	"github.com/pyrolite-go/pickle/pyro"

	_ "github.com/tliron/commonlog/simple"
)

var (
	version = "development"
	log     = commonlog.GetLogger("pickletool")
)

// options are shared by all commands.
type options struct {
	configPath string
	verbose    int
	hmacKey    string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Version:       version,
		Use:           "pickletool",
		Short:         "pickletool converts Python pickles and Pyro messages.",
		Long:          `Decode, encode and inspect Python pickles, bare or framed as Pyro messages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "read configuration from the given TOML file")
	cmd.PersistentFlags().CountVarP(&o.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	cmd.PersistentFlags().StringVar(&o.hmacKey, "hmac-key", "", "sign and verify Pyro messages with the given key")

	cmd.AddCommand(newDecodeCmd(o))
	cmd.AddCommand(newEncodeCmd(o))
	cmd.AddCommand(newInspectCmd(o))
	return cmd
}

// load reads configuration and applies flags over it.
func (o *options) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = c
	}

	if cmd.Flags().Changed("hmac-key") {
		cfg.Pyro.HMACKey = o.hmacKey
	}
	if o.verbose > 0 {
		cfg.Log.Verbosity = o.verbose
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	o.cfg = cfg
	return nil
}

func (o *options) tracer() *pyro.Tracer {
	return &pyro.Tracer{Dir: o.cfg.Pyro.TraceDir}
}

// readInput reads the named file, or stdin if there is none or it is "-".
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

// recvMessage parses a Pyro message and returns it with its pickle payload
// decompressed.
func (o *options) recvMessage(data []byte, allowed ...pyro.MsgType) (*pyro.Message, []byte, error) {
	m, err := pyro.Recv(bytes.NewReader(data), allowed, o.cfg.HMACKey())
	if err != nil {
		return nil, nil, err
	}
	if err := o.tracer().Recv(m); err != nil {
		return nil, nil, err
	}
	log.Infof("received %s message seq=%d with %d bytes of data", m.Type, m.Seq, m.DataSize)

	payload := m.Data
	if m.Flags.Has(pyro.FlagCompressed) {
		if payload, err = decompress(payload); err != nil {
			return nil, nil, err
		}
	}
	return m, payload, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
