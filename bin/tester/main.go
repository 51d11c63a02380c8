package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/quicmux/quicmux"
)

var infile string
var dehex bool

// stdoutTransport dumps whatever a Connection hands it instead of
// writing to a real socket, kept from the teacher's bin/tester stub
// transport for the same "feed a file through the stack, print the
// result" workflow.
type stdoutTransport struct{}

func (t *stdoutTransport) Send(p []byte) error {
	fmt.Printf("Output=%v", hex.Dump(p))
	return nil
}

func (t *stdoutTransport) Close() error { return nil }

func main() {
	flag.StringVar(&infile, "infile", "input", "input file to send as a single DATAGRAM")
	flag.BoolVar(&dehex, "hex", false, "file is in hex")
	flag.Parse()

	in, err := os.ReadFile(infile)
	if err != nil {
		fmt.Println("couldn't read file:", err)
		os.Exit(1)
	}

	if dehex {
		s := strings.NewReplacer(" ", "", "\n", "").Replace(string(in))
		in, err = hex.DecodeString(s)
		if err != nil {
			fmt.Println("couldn't hex decode input:", err)
			os.Exit(1)
		}
	}

	params := quicmux.DefaultParameters()
	params.MaxDatagramFrameSize = 1200
	conn := quicmux.NewConnection(quicmux.RoleClient, params, quicmux.NewPacedController(1<<20, 1<<16), &stdoutTransport{})

	if err := conn.Datagrams.SendBytes(in); err != nil {
		fmt.Println("couldn't queue datagram:", err)
		os.Exit(1)
	}

	buf := make([]byte, 0, 1452)
	out, encoded, err := conn.SendPacket(context.Background(), buf)
	if err != nil {
		fmt.Println("couldn't pack packet:", err)
		os.Exit(1)
	}
	fmt.Printf("packed %d bytes across %d frames\n", len(out), len(encoded))
}
