package link

import (
	"strconv"

	"powerfeed/errcode"
)

// Handler decodes its own arguments from args.
type Handler func(args *[]byte) error

// Command is a registered message. Responses have no handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format for the dictionary (e.g. "rate=%u")
	Handler Handler
}

// Registry assigns sequential ids to commands and responses in
// registration order.
type Registry struct {
	commands   []Command
	dictionary []byte
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a command and returns its id. Registering a name twice
// returns the existing id.
func (r *Registry) Register(name, format string, handler Handler) uint16 {
	if id, ok := r.ID(name); ok {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.dictionary = nil
	return id
}

// RegisterResponse adds a device to host message.
func (r *Registry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// Lookup returns the command with the given id.
func (r *Registry) Lookup(id uint16) (Command, bool) {
	if int(id) >= len(r.commands) {
		return Command{}, false
	}
	return r.commands[id], true
}

// ID returns the id of a named command.
func (r *Registry) ID(name string) (uint16, bool) {
	for _, c := range r.commands {
		if c.Name == name {
			return c.ID, true
		}
	}
	return 0, false
}

// Count returns the number of registered messages.
func (r *Registry) Count() int {
	return len(r.commands)
}

// Dispatch runs the handler of a command.
func (r *Registry) Dispatch(id uint16, args *[]byte) error {
	c, ok := r.Lookup(id)
	if !ok || c.Handler == nil {
		return errcode.UnknownCommand
	}
	return c.Handler(args)
}

// Dictionary returns one line per message: "id name format".
func (r *Registry) Dictionary() []byte {
	if r.dictionary != nil {
		return r.dictionary
	}
	var dict []byte
	for _, c := range r.commands {
		dict = strconv.AppendUint(dict, uint64(c.ID), 10)
		dict = append(dict, ' ')
		dict = append(dict, c.Name...)
		if c.Format != "" {
			dict = append(dict, ' ')
			dict = append(dict, c.Format...)
		}
		dict = append(dict, '\n')
	}
	r.dictionary = dict
	return dict
}

// Chunk returns up to count bytes of the dictionary starting at offset.
func (r *Registry) Chunk(offset uint32, count uint8) []byte {
	dict := r.Dictionary()
	if offset >= uint32(len(dict)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(dict)) {
		end = uint32(len(dict))
	}
	return dict[offset:end]
}
