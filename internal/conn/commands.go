package conn

import (
	"fmt"
	"strconv"

	"github.com/ehrlich-b/go-memkv/internal/constants"
	"github.com/ehrlich-b/go-memkv/internal/store"
	"github.com/ehrlich-b/go-memkv/internal/textproto"
)

// execGet implements `get`/`gets` (spec.md §4.3): one VALUE record per hit,
// no record for a miss, terminated by END. Matches
// memcached.c:2400's process_get_command, which rejects the whole request
// with CLIENT_ERROR the moment any key in the list is oversized.
func (c *Conn) execGet(cmd textproto.Command, withCAS bool) {
	for _, key := range cmd.Keys {
		if len(key) > constants.MaxKeySize {
			c.appendOutput(textproto.ClientErrorReply("bad command line format"))
			return
		}
	}
	for _, key := range cmd.Keys {
		it, ok := c.Store.Get(key)
		if c.WStats != nil {
			c.WStats.CmdGet.Add(1)
			if ok {
				c.WStats.GetHits.Add(1)
			} else {
				c.WStats.GetMisses.Add(1)
			}
		}
		if !ok {
			continue
		}
		c.appendOutput(textproto.ValueHeader(it.Key, it.Flags, len(it.Value), it.CAS, withCAS))
		c.appendOutput(append(append([]byte(nil), it.Value...), '\r', '\n'))
		if c.WStats != nil {
			c.WStats.BytesWritten.Add(uint64(len(it.Value)))
		}
		c.itemScratch = append(c.itemScratch, it)
	}
	c.appendOutput(textproto.ReplyEnd)
	// Release refcounts taken by Get once the reply bytes are copied out;
	// the reply buffers above are independent copies, so items can be
	// released immediately rather than held until flush.
	c.releaseScratch()
}

// execDelete implements `delete`. Matches memcached.c:2753's
// process_delete_command oversized-key rejection.
func (c *Conn) execDelete(cmd textproto.Command) {
	if len(cmd.Keys[0]) > constants.MaxKeySize {
		if !cmd.NoReply {
			c.appendOutput(textproto.ClientErrorReply("bad command line format"))
		}
		return
	}
	err := c.Store.Delete(cmd.Keys[0])
	if c.WStats != nil {
		c.WStats.CmdDelete.Add(1)
	}
	if cmd.NoReply {
		return
	}
	switch err {
	case nil:
		c.appendOutput(textproto.ReplyDeleted)
	case store.ErrNotFound:
		c.appendOutput(textproto.ReplyNotFound)
	default:
		c.appendOutput(textproto.ServerErrorReply(err.Error()))
	}
}

// execIncrDecr implements `incr`/`decr`. Matches memcached.c:2639's
// process_arithmetic_command oversized-key rejection.
func (c *Conn) execIncrDecr(cmd textproto.Command, incr bool) {
	if len(cmd.Keys[0]) > constants.MaxKeySize {
		if !cmd.NoReply {
			c.appendOutput(textproto.ClientErrorReply("bad command line format"))
		}
		return
	}
	n, err := c.Store.IncrDecr(cmd.Keys[0], cmd.Delta, incr)
	if incr {
		if c.WStats != nil {
			c.WStats.CmdIncr.Add(1)
		}
	} else if c.WStats != nil {
		c.WStats.CmdDecr.Add(1)
	}
	if cmd.NoReply && err != store.ErrBadDelta {
		return
	}
	switch err {
	case nil:
		c.appendOutput(append([]byte(strconv.FormatUint(n, 10)), '\r', '\n'))
	case store.ErrNotFound:
		c.appendOutput(textproto.ReplyNotFound)
	case store.ErrBadDelta:
		c.appendOutput(textproto.ClientErrorReply("cannot increment or decrement non-numeric value"))
	default:
		c.appendOutput(textproto.ServerErrorReply(err.Error()))
	}
}

// execFlushAll implements `flush_all`.
func (c *Conn) execFlushAll(cmd textproto.Command) {
	at := c.Store.Now()
	if cmd.HasArg {
		at = int64(c.Store.NormalizeExptime(cmd.Exptime))
	}
	c.Store.FlushAll(at)
	if c.WStats != nil {
		c.WStats.CmdFlush.Add(1)
	}
	if !cmd.NoReply {
		c.appendOutput(textproto.ReplyOK)
	}
}

// execSlabsReassign implements `slabs reassign <src> <dst>` (spec.md §4.4).
func (c *Conn) execSlabsReassign(cmd textproto.Command) {
	src := c.Alloc.ClassByID(cmd.SlabsSrc)
	dst := c.Alloc.ClassByID(cmd.SlabsDst)
	if src == nil || dst == nil {
		c.appendOutput(textproto.ClientErrorReply("bad class id"))
		return
	}
	switch c.Alloc.Reassign(src, dst) {
	case 0: // ReassignDone
		c.appendOutput([]byte("DONE\r\n"))
	case 1: // ReassignCant
		c.appendOutput([]byte("CANT\r\n"))
	default: // ReassignBusy
		c.appendOutput([]byte("BUSY\r\n"))
	}
}

// execStats implements `stats`, `stats slabs`, `stats items`, `stats
// reset`, and `stats cachedump <id> <limit>` (spec.md §4.6, extended per
// SPEC_FULL.md's supplemented subcommand surface).
func (c *Conn) execStats(cmd textproto.Command) {
	switch cmd.Sub {
	case "reset":
		if c.WStats != nil {
			c.WStats.Reset()
		}
		if c.GStats != nil {
			c.GStats.ResetAll()
		}
		c.appendOutput([]byte("RESET\r\n"))
	case "slabs":
		for _, class := range c.Alloc.Classes() {
			st := c.Alloc.Stat(class)
			c.appendOutput(statLine(fmt.Sprintf("%d:chunk_size", st.ClassID), st.ChunkSize))
			c.appendOutput(statLine(fmt.Sprintf("%d:total_pages", st.ClassID), st.Pages))
			c.appendOutput(statLine(fmt.Sprintf("%d:free_chunks", st.ClassID), st.FreeChunks))
			c.appendOutput(statLine(fmt.Sprintf("%d:used_chunks", st.ClassID), st.UsedChunks))
		}
		c.appendOutput(textproto.ReplyEnd)
	case "items":
		c.appendOutput(statLine("curr_items", c.Store.ItemCount()))
		c.appendOutput(textproto.ReplyEnd)
	case "cachedump":
		for _, d := range c.Store.CacheDump(cmd.SlabsSrc, cmd.SlabsDst) {
			c.appendOutput([]byte(fmt.Sprintf("ITEM %s [%d b; %d s]\r\n", d.Key, d.Size, d.Exptime)))
		}
		c.appendOutput(textproto.ReplyEnd)
	default:
		c.appendOutput(statLine("curr_items", c.Store.ItemCount()))
		c.appendOutput(statLine("bytes_allocated", int(c.Alloc.UsedBytes())))
		if c.WStats != nil {
			c.appendOutput(statLine("cmd_get", int(c.WStats.CmdGet.Load())))
			c.appendOutput(statLine("cmd_set", int(c.WStats.CmdSet.Load())))
			c.appendOutput(statLine("get_hits", int(c.WStats.GetHits.Load())))
			c.appendOutput(statLine("get_misses", int(c.WStats.GetMisses.Load())))
		}
		c.appendOutput(textproto.ReplyEnd)
	}
}

func statLine(name string, value int) []byte {
	return []byte(fmt.Sprintf("STAT %s %d\r\n", name, value))
}
