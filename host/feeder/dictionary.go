package feeder

import (
	"bufio"
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"powerfeed/errcode"
)

// Message is one entry of the device dictionary.
type Message struct {
	ID     uint16
	Name   string
	Format string
}

// Dictionary maps message names to the ids the device assigned them.
type Dictionary struct {
	byName map[string]Message
	byID   map[uint16]Message
}

// ParseDictionary parses the "id name format" lines served by identify.
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{
		byName: make(map[string]Message),
		byID:   make(map[uint16]Message),
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			return nil, errors.Wrapf(errcode.BadFrame, "dictionary line %d: %q", n, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 16)
		if err != nil {
			return nil, errors.Wrapf(errcode.BadFrame, "dictionary line %d: bad id %q", n, fields[0])
		}
		m := Message{ID: uint16(id), Name: fields[1]}
		if len(fields) == 3 {
			m.Format = fields[2]
		}
		if _, dup := d.byName[m.Name]; dup {
			return nil, errors.Wrapf(errcode.BadFrame, "dictionary line %d: duplicate %s", n, m.Name)
		}
		d.byName[m.Name] = m
		d.byID[m.ID] = m
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan dictionary")
	}
	return d, nil
}

// ID returns the id of a named message.
func (d *Dictionary) ID(name string) (uint16, bool) {
	m, ok := d.byName[name]
	return m.ID, ok
}

// Lookup returns the message with the given id.
func (d *Dictionary) Lookup(id uint16) (Message, bool) {
	m, ok := d.byID[id]
	return m, ok
}

// Messages returns every entry ordered by id.
func (d *Dictionary) Messages() []Message {
	out := make([]Message, 0, len(d.byID))
	for _, m := range d.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.byID)
}
