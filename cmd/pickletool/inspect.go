package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pyrolite-go/pickle"
	"github.com/pyrolite-go/pickle/pyro"
)

var flagNames = []struct {
	flag pyro.Flags
	name string
}{
	{pyro.FlagException, "exception"},
	{pyro.FlagCompressed, "compressed"},
	{pyro.FlagOneway, "oneway"},
	{pyro.FlagBatch, "batch"},
	{pyro.FlagMetaOnConnect, "metaonconnect"},
	{pyro.FlagItemStreamResult, "itemstream"},
}

func newInspectCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [file]",
		Short: "Print header and annotations of a Pyro message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			m, payload, err := o.recvMessage(data)
			if err != nil {
				return err
			}
			return printMessage(cmd.OutOrStdout(), m, payload)
		},
	}
}

func printMessage(w io.Writer, m *pyro.Message, payload []byte) error {
	var names []string
	for _, f := range flagNames {
		if m.Flags.Has(f.flag) {
			names = append(names, f.name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "type:        %s\n", m.Type)
	fmt.Fprintf(&b, "flags:       0x%04x %s\n", uint16(m.Flags), strings.Join(names, ","))
	fmt.Fprintf(&b, "seq:         %d\n", m.Seq)
	fmt.Fprintf(&b, "serializer:  %d\n", m.SerializerID)
	fmt.Fprintf(&b, "data size:   %d (%d uncompressed)\n", m.DataSize, len(payload))
	fmt.Fprintf(&b, "annotations: %d bytes\n", m.AnnotationsSize)
	for _, k := range sortedAnnotations(m) {
		v := m.Annotations[k]
		text := pickle.Quote(string(v))
		if k == pyro.AnnotationHMAC || k == pyro.AnnotationCorrelation {
			text = hex.EncodeToString(v)
		}
		fmt.Fprintf(&b, "  %s %5d %s\n", k, len(v), text)
	}
	if id, ok := m.CorrelationID(); ok {
		fmt.Fprintf(&b, "correlation: %s\n", id)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func sortedAnnotations(m *pyro.Message) []string {
	keys := make([]string, 0, len(m.Annotations))
	for k := range m.Annotations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
