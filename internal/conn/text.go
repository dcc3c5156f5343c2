package conn

import (
	"bytes"

	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/store"
	"github.com/ehrlich-b/go-memkv/internal/textproto"
)

// DriveText processes as many complete text-protocol requests as are
// buffered, up to ReqsPerEvent, per spec.md §4.1 "Fairness". It returns
// true if the connection needs more bytes from the socket before it can
// make further progress (i.e. should return to `waiting`).
func (c *Conn) DriveText() (needMore bool, quit bool) {
	for i := 0; i < constants.ReqsPerEvent; i++ {
		if c.swallow > 0 {
			done := c.continueSwallow()
			if !done {
				return true, false
			}
			continue
		}

		if c.pending != nil {
			done := c.continueBody()
			if !done {
				return true, false
			}
			continue
		}

		line, ok := c.nextLine()
		if !ok {
			return true, false
		}

		q := c.execTextLine(line)
		if q {
			return false, true
		}
	}
	return false, false
}

// nextLine extracts one CRLF-terminated line from the buffered region,
// advancing rHead past it. Returns ok=false if no full line is buffered
// yet.
func (c *Conn) nextLine() (line []byte, ok bool) {
	buffered := c.rbuf[c.rHead:c.rTail]
	idx := bytes.Index(buffered, []byte("\r\n"))
	if idx < 0 {
		return nil, false
	}
	line = buffered[:idx]
	c.rHead += idx + 2
	return line, true
}

// execTextLine parses and executes one request line, queuing a reply
// unless a storage command needs its body first. Returns true if the
// connection should close after flushing (the `quit` command).
func (c *Conn) execTextLine(line []byte) (quit bool) {
	cmd, err := textproto.ParseLine(line)
	if err != nil {
		if ce, ok := err.(*textproto.ClientError); ok {
			c.appendOutput(textproto.ClientErrorReply(ce.Error()))
		} else {
			c.appendOutput(textproto.ReplyError)
		}
		return false
	}

	if cmd.Verb == textproto.VerbUnknown && len(cmd.Raw) > 0 {
		c.appendOutput(textproto.ReplyError)
		return false
	}

	if cmd.Verb.IsStorage() || cmd.Verb == textproto.VerbCas {
		return c.beginStorage(cmd)
	}

	switch cmd.Verb {
	case textproto.VerbGet, textproto.VerbGets:
		c.execGet(cmd, cmd.Verb == textproto.VerbGets)
	case textproto.VerbDelete:
		c.execDelete(cmd)
	case textproto.VerbIncr:
		c.execIncrDecr(cmd, true)
	case textproto.VerbDecr:
		c.execIncrDecr(cmd, false)
	case textproto.VerbFlushAll:
		c.execFlushAll(cmd)
	case textproto.VerbStats:
		c.execStats(cmd)
	case textproto.VerbVersion:
		c.appendOutput(textproto.VersionReply("1.6.0-go-memkv"))
	case textproto.VerbVerbosity:
		if !cmd.NoReply {
			c.appendOutput(textproto.ReplyOK)
		}
	case textproto.VerbSlabsReassign:
		c.execSlabsReassign(cmd)
	case textproto.VerbQuit:
		return true
	default:
		c.appendOutput(textproto.ReplyError)
	}
	return false
}

// beginStorage stashes the parsed header and transitions to nread-style
// body accumulation. Returns false always (storage commands never quit).
func (c *Conn) beginStorage(cmd textproto.Command) bool {
	if len(cmd.Keys[0]) > constants.MaxKeySize {
		c.appendOutput(textproto.ClientErrorReply("bad command line format"))
		c.State = StateSwallow
		c.swallow = cmd.Bytes + 2
		return false
	}

	var verb pendingVerb
	switch cmd.Verb {
	case textproto.VerbSet:
		verb = pendSet
	case textproto.VerbAdd:
		verb = pendAdd
	case textproto.VerbReplace:
		verb = pendReplace
	case textproto.VerbAppend:
		verb = pendAppend
	case textproto.VerbPrepend:
		verb = pendPrepend
	case textproto.VerbCas:
		verb = pendCas
	}

	c.pending = &pendingStore{
		verb:    verb,
		key:     append([]byte(nil), cmd.Keys[0]...),
		flags:   cmd.Flags,
		exptime: cmd.Exptime,
		bytes:   cmd.Bytes,
		cas:     cmd.CAS,
		noReply: cmd.NoReply,
	}
	return false
}

// continueBody waits for the full body (value + trailing CRLF) to be
// buffered, then executes the storage command. Returns true once the
// pending command has been resolved (stored or rejected).
func (c *Conn) continueBody() bool {
	need := c.pending.bytes + 2
	if c.unreadLen() < need {
		return false
	}
	body := c.rbuf[c.rHead : c.rHead+c.pending.bytes]
	trailer := c.rbuf[c.rHead+c.pending.bytes : c.rHead+need]
	c.rHead += need

	p := c.pending
	c.pending = nil

	if trailer[0] != '\r' || trailer[1] != '\n' {
		if !p.noReply {
			c.appendOutput(textproto.ClientErrorReply("bad data chunk"))
		}
		return true
	}

	value := append([]byte(nil), body...)
	var it *store.Item
	var err error
	exptime := c.Store.NormalizeExptime(p.exptime)

	switch p.verb {
	case pendSet:
		it, err = c.Store.Set(p.key, p.flags, exptime, value)
	case pendAdd:
		it, err = c.Store.Add(p.key, p.flags, exptime, value)
	case pendReplace:
		it, err = c.Store.ReplaceCmd(p.key, p.flags, exptime, value)
	case pendAppend:
		it, err = c.Store.Append(p.key, value)
	case pendPrepend:
		it, err = c.Store.Prepend(p.key, value)
	case pendCas:
		it, err = c.Store.Cas(p.key, p.flags, exptime, value, p.cas)
	}
	_ = it

	if c.WStats != nil {
		c.WStats.BytesRead.Add(uint64(len(body)))
		c.WStats.CmdSet.Add(1)
	}

	if p.noReply && err != store.ErrTooLarge && err != store.ErrOutOfMemory {
		return true
	}

	switch err {
	case nil:
		c.appendOutput(textproto.ReplyStored)
	case store.ErrNotStored:
		c.appendOutput(textproto.ReplyNotStored)
	case store.ErrNotFound:
		c.appendOutput(textproto.ReplyNotFound)
	case store.ErrExists:
		c.appendOutput(textproto.ReplyExists)
	case store.ErrTooLarge:
		c.appendOutput(textproto.ReplyTooLarge)
	case store.ErrOutOfMemory:
		c.appendOutput(textproto.ReplyOutOfMemory)
	default:
		c.appendOutput(textproto.ServerErrorReply(err.Error()))
	}
	return true
}

// continueSwallow discards bytes of an in-flight swallow (spec.md §4.1
// `swallow` state, entered when a storage command is rejected before
// allocation and its body must still be discarded: spec.md §7 "a swallow
// state is entered if an unread body follows the failed allocation").
// Like continueBody, it only consumes what is currently buffered and
// reports whether the swallow is now complete; DriveText re-enters this on
// every iteration (and across reads) until it returns true, the same way
// a pending nread is resumed.
func (c *Conn) continueSwallow() bool {
	avail := c.unreadLen()
	if avail > c.swallow {
		avail = c.swallow
	}
	c.rHead += avail
	c.swallow -= avail
	return c.swallow == 0
}
