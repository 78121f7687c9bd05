package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pyrolite-go/pickle"
	"github.com/pyrolite-go/pickle/pyro"
)

func newDecodeCmd(o *options) *cobra.Command {
	var message bool

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a pickle and print it as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if message {
				var m *pyro.Message
				m, data, err = o.recvMessage(data, pyro.MsgInvoke, pyro.MsgResult)
				if err != nil {
					return err
				}
				if m.SerializerID != pyro.SerializerPickle {
					return fmt.Errorf("message payload is not a pickle (serializer %d)", m.SerializerID)
				}
			}

			v, err := pickle.NewDecoderBytes(data, &pickle.DecoderConfig{Registry: pyroRegistry()}).Decode()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(toJSON(v), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().BoolVarP(&message, "message", "m", false, "input is a Pyro message")
	return cmd
}

// pyroRegistry returns registry that also knows Pyro4 exceptions, URI and Proxy.
func pyroRegistry() *pickle.Registry {
	r := pickle.NewRegistry()
	pyro.RegisterPickle(r)
	return r
}
