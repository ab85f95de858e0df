package infoshare

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"sync"
)

var (
	ErrDuplicateCommand = errors.New("command already registered")
	ErrDuplicateRoute   = errors.New("custom ID prefix already registered")
)

// InteractionHandlerFunc handles one routed interaction.
type InteractionHandlerFunc func(ctx context.Context, handler InteractionHandler)

// Command is a slash command contributed by a Feature.
type Command struct {
	Name        string
	Description string
	Handler     InteractionHandlerFunc
}

// Feature is a named group of commands and component handlers, loaded
// once at startup.
type Feature interface {
	// Name identifies the feature in logs and in /help
	Name() string

	// Load prepares the feature and registers its commands and component
	// handlers. If Load returns an error, nothing it registered is kept.
	Load(ctx context.Context, r *Registry) error
}

// Registry routes interactions to the handlers registered by loaded
// features. Slash commands are routed by name, message components and
// modals by the prefix of their custom ID.
type Registry struct {
	mu         sync.RWMutex
	commands   []Command
	components map[string]InteractionHandlerFunc
	modals     map[string]InteractionHandlerFunc
	features   []string
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		components: map[string]InteractionHandlerFunc{},
		modals:     map[string]InteractionHandlerFunc{},
		logger:     logger,
	}
}

// AddCommand registers a slash command. Names must be unique.
func (r *Registry) AddCommand(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.commands {
		if existing.Name == c.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, c.Name)
		}
	}
	r.commands = append(r.commands, c)
	return nil
}

// AddComponentHandler registers the handler for message components whose
// custom ID starts with prefix.
func (r *Registry) AddComponentHandler(prefix string, h InteractionHandlerFunc) error {
	return r.addRoute(r.components, prefix, h)
}

// AddModalHandler registers the handler for modal submissions whose
// custom ID starts with prefix.
func (r *Registry) AddModalHandler(prefix string, h InteractionHandlerFunc) error {
	return r.addRoute(r.modals, prefix, h)
}

func (r *Registry) addRoute(
	routes map[string]InteractionHandlerFunc,
	prefix string,
	h InteractionHandlerFunc,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := routes[prefix]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, prefix)
	}
	routes[prefix] = h
	return nil
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	commands := make([]Command, len(r.commands))
	copy(commands, r.commands)
	return commands
}

// Features returns the names of successfully loaded features, in load order.
func (r *Registry) Features() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	features := make([]string, len(r.features))
	copy(features, r.features)
	return features
}

// ApplicationCommands returns the registered commands in the form
// expected by the discord bulk overwrite endpoint.
func (r *Registry) ApplicationCommands() []*discordgo.ApplicationCommand {
	commands := r.Commands()
	appCommands := make([]*discordgo.ApplicationCommand, 0, len(commands))
	for _, c := range commands {
		appCommands = append(
			appCommands,
			&discordgo.ApplicationCommand{
				Name:        c.Name,
				Description: c.Description,
				Type:        discordgo.ChatApplicationCommand,
			},
		)
	}
	return appCommands
}

// LoadFeatures loads each feature into a scratch registry, merging it in
// only if Load succeeds. A failed feature is logged and skipped.
// It returns the errors of every failed feature, joined.
func (r *Registry) LoadFeatures(ctx context.Context, features ...Feature) error {
	var errs []error
	for _, f := range features {
		logger := r.logger.With("feature", f.Name())
		staged := NewRegistry(logger)
		if err := f.Load(ctx, staged); err != nil {
			logger.ErrorContext(ctx, "error loading feature", tint.Err(err))
			errs = append(errs, fmt.Errorf("feature %s: %w", f.Name(), err))
			continue
		}
		if err := r.merge(staged); err != nil {
			logger.ErrorContext(ctx, "error registering feature", tint.Err(err))
			errs = append(errs, fmt.Errorf("feature %s: %w", f.Name(), err))
			continue
		}
		r.mu.Lock()
		r.features = append(r.features, f.Name())
		r.mu.Unlock()
		logger.InfoContext(ctx, "loaded feature", "commands", len(staged.commands))
	}
	return errors.Join(errs...)
}

// merge adds everything registered in other, or nothing if any command
// or prefix collides.
func (r *Registry) merge(other *Registry) error {
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, c := range other.commands {
		for _, existing := range r.commands {
			if existing.Name == c.Name {
				errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateCommand, c.Name))
			}
		}
	}
	for prefix := range other.components {
		if _, exists := r.components[prefix]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateRoute, prefix))
		}
	}
	for prefix := range other.modals {
		if _, exists := r.modals[prefix]; exists {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateRoute, prefix))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	r.commands = append(r.commands, other.commands...)
	for prefix, h := range other.components {
		r.components[prefix] = h
	}
	for prefix, h := range other.modals {
		r.modals[prefix] = h
	}
	return nil
}

// Route returns the handler for the interaction, or nil if nothing
// is registered for it.
func (r *Registry) Route(i *discordgo.InteractionCreate) InteractionHandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		for _, c := range r.commands {
			if c.Name == name {
				return c.Handler
			}
		}
	case discordgo.InteractionMessageComponent:
		prefix, _ := splitCustomID(i.MessageComponentData().CustomID)
		return r.components[prefix]
	case discordgo.InteractionModalSubmit:
		prefix, _ := splitCustomID(i.ModalSubmitData().CustomID)
		return r.modals[prefix]
	default:
	}
	return nil
}
