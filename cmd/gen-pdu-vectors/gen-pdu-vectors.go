// Command gen-pdu-vectors emits provisioning PDU encoding vectors usable to
// validate foreign codec implementations.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"

	"code.btmesh.org/golang/internal/utils"
	"code.btmesh.org/golang/pkg/provisioning"
)

const usageFmt = `
Command Usage: %s [Flags]
  Generate provisioning PDU encoding test vectors.

Flags:
------
`

type Cmd struct {
	Out *json.Encoder
}

// Vector is one encoded PDU sample.
type Vector struct {
	Name    string          `json:"name"`
	Opcode  byte            `json:"opcode"`
	Encoded utils.HexBinary `json:"encoded"`
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var outPath string
	flags.StringVar(&outPath, "o", "-", `path where to save the generated vectors`)

	flags.Parse(args)

	// set cmd.Out
	var err error
	var outFile *os.File
	if "-" != outPath {
		outFile, err = os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if nil != err {
			log.Fatalf("Failed opening %s, got error %v", outPath, err)
		}
	} else {
		outFile = os.Stdout
	}
	enc := json.NewEncoder(outFile)
	enc.SetIndent("", "  ")
	cmd.Out = enc

	return &cmd
}

// fill returns size bytes cycling from start, vectors stay deterministic.
func fill(start byte, size int) []byte {
	rv := make([]byte, size)
	for i := range rv {
		rv[i] = start + byte(i)
	}
	return rv
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])

	requests := []struct {
		name string
		req  provisioning.Request
	}{
		{"invite/attention-5s", provisioning.Invite{AttentionTimer: 5}},
		{"invite/attention-0s", provisioning.Invite{AttentionTimer: 0}},
		{
			"start/p256-no-oob",
			provisioning.Start{
				Algorithm:  provisioning.AlgorithmFipsP256,
				PublicKey:  provisioning.NoOobPublicKey,
				AuthMethod: provisioning.AuthNone,
			},
		},
		{
			"start/p256-static-oob",
			provisioning.Start{
				Algorithm:  provisioning.AlgorithmFipsP256,
				PublicKey:  provisioning.OobPublicKey,
				AuthMethod: provisioning.AuthStatic,
			},
		},
		{"publicKey", provisioning.PublicKey{Key: fill(0x00, 64)}},
		{"confirmation", provisioning.Confirmation{Value: fill(0xC0, 16)}},
		{"random", provisioning.Random{Value: fill(0x40, 16)}},
		{"data", provisioning.Data{Encrypted: fill(0xD0, 33)}},
	}

	vectors := make([]Vector, 0, len(requests))
	for _, r := range requests {
		vectors = append(vectors, Vector{
			Name:    r.name,
			Opcode:  byte(r.req.PduType()),
			Encoded: provisioning.Encode(r.req),
		})
	}
	err := cmd.Out.Encode(vectors)
	if nil != err {
		log.Fatalf("Failed serializing []Vector, got error %v", err)
	}
}
