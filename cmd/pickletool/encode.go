package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pyrolite-go/pickle"
	"github.com/pyrolite-go/pickle/pyro"
)

var msgTypes = map[string]pyro.MsgType{
	"invoke": pyro.MsgInvoke,
	"result": pyro.MsgResult,
}

func newEncodeCmd(o *options) *cobra.Command {
	var mf messageFlags

	cmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Encode JSON as a protocol 2 pickle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			v, err := parseJSON(data)
			if err != nil {
				return err
			}

			var buf bytes.Buffer
			e := pickle.NewEncoderWithConfig(&buf, &pickle.EncoderConfig{NoMemo: !o.cfg.Pickle.Memo})
			if err := e.Encode(v); err != nil {
				return err
			}
			out := buf.Bytes()

			if mf.message {
				typ, ok := msgTypes[strings.ToLower(mf.msgType)]
				if !ok {
					return fmt.Errorf("unknown message type %q", mf.msgType)
				}
				if !cmd.Flags().Changed("compress") {
					mf.compress = o.cfg.Pyro.Compress
				}
				if out, err = o.wrapMessage(typ, out, mf.seq, mf.compress); err != nil {
					return err
				}
			}

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	mf.register(cmd.Flags())
	return cmd
}

type messageFlags struct {
	message  bool
	compress bool
	seq      uint16
	msgType  string
}

func (mf *messageFlags) register(fs *pflag.FlagSet) {
	fs.BoolVarP(&mf.message, "message", "m", false, "wrap the pickle into a Pyro message")
	fs.BoolVarP(&mf.compress, "compress", "z", false, "compress message payload")
	fs.Uint16Var(&mf.seq, "seq", 0, "message sequence number")
	fs.StringVar(&mf.msgType, "type", "invoke", "message type: invoke or result")
}

func (o *options) wrapMessage(typ pyro.MsgType, payload []byte, seq uint16, compressed bool) ([]byte, error) {
	var flags pyro.Flags
	if compressed {
		z, err := compress(payload)
		if err != nil {
			return nil, err
		}
		payload = z
		flags |= pyro.FlagCompressed
	}

	m, err := pyro.New(typ, payload, pyro.SerializerPickle, flags, seq, nil, nil)
	if err != nil {
		return nil, err
	}
	m.SetCorrelationID(uuid.New())
	if key := o.cfg.HMACKey(); key != nil {
		if err := m.Sign(key); err != nil {
			return nil, err
		}
	}
	if err := o.tracer().Send(m); err != nil {
		return nil, err
	}
	log.Infof("encoded %s message seq=%d with %d bytes of data", m.Type, m.Seq, m.DataSize)
	return m.Bytes()
}

// parseJSON decodes JSON keeping integers exact.
func parseJSON(data []byte) (any, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var v any
	if err := d.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return fromJSON(v), nil
}
