// Package textproto implements the line-oriented ASCII command protocol of
// spec.md §4.3: CRLF-terminated request lines, storage commands followed by
// a declared-length body, and the ERROR/STORED/VALUE family of replies.
//
// Tokenizing a request line follows the same discipline internal/uapi uses
// for fixed binary layouts — validate shape first, extract fields second —
// just applied to whitespace-split text instead of byte offsets.
package textproto

import (
	"bytes"
	"strconv"
)

// Verb identifies a parsed text command.
type Verb int

const (
	VerbUnknown Verb = iota
	VerbGet
	VerbGets
	VerbSet
	VerbAdd
	VerbReplace
	VerbAppend
	VerbPrepend
	VerbCas
	VerbDelete
	VerbIncr
	VerbDecr
	VerbFlushAll
	VerbStats
	VerbVersion
	VerbQuit
	VerbVerbosity
	VerbSlabsReassign
)

var verbTable = map[string]Verb{
	"get":     VerbGet,
	"gets":    VerbGets,
	"set":     VerbSet,
	"add":     VerbAdd,
	"replace": VerbReplace,
	"append":  VerbAppend,
	"prepend": VerbPrepend,
	"cas":     VerbCas,
	"delete":  VerbDelete,
	"incr":    VerbIncr,
	"decr":    VerbDecr,
	"flush_all": VerbFlushAll,
	"stats":     VerbStats,
	"version":   VerbVersion,
	"quit":      VerbQuit,
	"verbosity": VerbVerbosity,
}

// IsStorage reports whether verb is followed by a declared-length body.
func (v Verb) IsStorage() bool {
	switch v {
	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend, VerbCas:
		return true
	}
	return false
}

// Command is one parsed text request, storage fields populated only when
// IsStorage() or Verb == VerbSlabsReassign.
type Command struct {
	Verb    Verb
	Keys    [][]byte // get/gets may carry many; others carry at most one
	Flags   uint32
	Exptime uint32
	Bytes   int
	CAS     uint64
	Delta   uint64
	NoReply bool

	// flush_all's optional delay reuses Exptime (HasArg records that it was
	// given) and verbosity's level reuses Flags, to avoid a wider struct for
	// single-use fields; slabs reassign's class ids go in SlabsSrc/SlabsDst.
	HasArg bool

	Sub string // stats subcommand, e.g. "slabs", "items", "reset", "cachedump"

	// SlabsSrc/SlabsDst double as stats cachedump's <id>/<limit> args,
	// since neither command needs both pairs at once.
	SlabsSrc, SlabsDst int

	Raw []byte // the original line, for error messages
}

// ErrMalformed is returned for a line that cannot be tokenized at all.
var ErrMalformed = NewClientError("bad command line")

// ClientError reports a protocol-layer mistake; the connection stays open.
type ClientError struct{ msg string }

func NewClientError(msg string) *ClientError { return &ClientError{msg: msg} }
func (e *ClientError) Error() string         { return e.msg }

// ParseLine tokenizes one CRLF-stripped request line into a Command.
func ParseLine(line []byte) (Command, error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrMalformed
	}

	verb, ok := verbTable[string(fields[0])]
	if !ok {
		if string(fields[0]) == "slabs" {
			return parseSlabs(fields, line)
		}
		return Command{Raw: line}, nil // unknown command, not malformed
	}

	cmd := Command{Verb: verb, Raw: line}

	switch verb {
	case VerbGet, VerbGets:
		if len(fields) < 2 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Keys = fields[1:]
		return cmd, nil

	case VerbSet, VerbAdd, VerbReplace, VerbAppend, VerbPrepend:
		if len(fields) < 5 || len(fields) > 6 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Keys = fields[1:2]
		if err := parseUint32(fields[2], &cmd.Flags); err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		if err := parseUint32(fields[3], &cmd.Exptime); err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		n, err := strconv.Atoi(string(fields[4]))
		if err != nil || n < 0 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Bytes = n
		if len(fields) == 6 {
			if !bytes.Equal(fields[5], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
		}
		return cmd, nil

	case VerbCas:
		if len(fields) < 6 || len(fields) > 7 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Keys = fields[1:2]
		if err := parseUint32(fields[2], &cmd.Flags); err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		if err := parseUint32(fields[3], &cmd.Exptime); err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		n, err := strconv.Atoi(string(fields[4]))
		if err != nil || n < 0 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Bytes = n
		cas, err := strconv.ParseUint(string(fields[5]), 10, 64)
		if err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.CAS = cas
		if len(fields) == 7 {
			if !bytes.Equal(fields[6], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
		}
		return cmd, nil

	case VerbDelete:
		if len(fields) < 2 || len(fields) > 3 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Keys = fields[1:2]
		if len(fields) == 3 {
			if !bytes.Equal(fields[2], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
		}
		return cmd, nil

	case VerbIncr, VerbDecr:
		if len(fields) < 3 || len(fields) > 4 {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Keys = fields[1:2]
		delta, err := strconv.ParseUint(string(fields[2]), 10, 64)
		if err != nil {
			return Command{}, NewClientError("invalid numeric delta argument")
		}
		cmd.Delta = delta
		if len(fields) == 4 {
			if !bytes.Equal(fields[3], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
		}
		return cmd, nil

	case VerbFlushAll:
		i := 1
		if i < len(fields) && !bytes.Equal(fields[i], []byte("noreply")) {
			var e uint32
			if err := parseUint32(fields[i], &e); err != nil {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.Exptime = e
			cmd.HasArg = true
			i++
		}
		if i < len(fields) {
			if !bytes.Equal(fields[i], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
			i++
		}
		if i != len(fields) {
			return Command{}, NewClientError("bad command line format")
		}
		return cmd, nil

	case VerbStats:
		if len(fields) > 4 {
			return Command{}, NewClientError("bad command line format")
		}
		if len(fields) >= 2 {
			cmd.Sub = string(fields[1])
		}
		if cmd.Sub == "cachedump" {
			if len(fields) != 4 {
				return Command{}, NewClientError("bad command line")
			}
			id, err := strconv.Atoi(string(fields[2]))
			if err != nil {
				return Command{}, NewClientError("bad command line format")
			}
			limit, err := strconv.Atoi(string(fields[3]))
			if err != nil {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.SlabsSrc, cmd.SlabsDst = id, limit
		} else if len(fields) > 2 {
			return Command{}, NewClientError("bad command line format")
		}
		return cmd, nil

	case VerbVersion, VerbQuit:
		return cmd, nil

	case VerbVerbosity:
		if len(fields) < 2 || len(fields) > 3 {
			return Command{}, NewClientError("bad command line format")
		}
		var v uint32
		if err := parseUint32(fields[1], &v); err != nil {
			return Command{}, NewClientError("bad command line format")
		}
		cmd.Flags = v
		if len(fields) == 3 {
			if !bytes.Equal(fields[2], []byte("noreply")) {
				return Command{}, NewClientError("bad command line format")
			}
			cmd.NoReply = true
		}
		return cmd, nil
	}

	return cmd, nil
}

func parseSlabs(fields [][]byte, line []byte) (Command, error) {
	if len(fields) != 4 || string(fields[1]) != "reassign" {
		return Command{}, NewClientError("bad command line format")
	}
	src, err1 := strconv.Atoi(string(fields[2]))
	dst, err2 := strconv.Atoi(string(fields[3]))
	if err1 != nil || err2 != nil {
		return Command{}, NewClientError("bad command line format")
	}
	return Command{Verb: VerbSlabsReassign, SlabsSrc: src, SlabsDst: dst, Raw: line}, nil
}

func parseUint32(b []byte, out *uint32) error {
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return err
	}
	*out = uint32(n)
	return nil
}
