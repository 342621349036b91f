package checkedindex

import (
	"context"

	"github.com/mvp-joe/cortexidx/internal/model"
)

// maxContainerDepth bounds the accessor_of/child_of walk so a corrupt or
// cyclic index database can never hang this call.
const maxContainerDepth = 64

// ContainerNames walks occ's accessor_of chain, then its child_of chain,
// following only containers whose kind is a named container kind, and
// resolving extension containers to their extended type via extended_by.
// The outer-to-inner result is memoised per USR for the lifetime of this
// request-scoped instance.
func (c *CheckedIndex) ContainerNames(ctx context.Context, occ model.Occurrence) ([]string, error) {
	c.mu.Lock()
	if cached, ok := c.containerNameCache[occ.Symbol.USR]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var inward []string // inner-to-outer as walked; reversed at the end

	next := occ.AccessorOf
	if next == nil {
		next = occ.ChildOf
	}

	for depth := 0; next != nil && depth < maxContainerDepth; depth++ {
		usr := *next
		containerOcc, ok, err := c.definitionOccurrenceForUSR(ctx, usr)
		if err != nil {
			return nil, err
		}
		if !ok || !containerOcc.Symbol.Kind.IsNamedContainer() {
			break
		}

		name := containerOcc.Symbol.Name
		if containerOcc.Symbol.Kind == model.ContainerKindExtension && containerOcc.ExtendedByUSR != nil {
			if extended, ok, err := c.definitionOccurrenceForUSR(ctx, *containerOcc.ExtendedByUSR); err == nil && ok {
				name = extended.Symbol.Name
			} else if err != nil {
				return nil, err
			}
		}
		inward = append(inward, name)

		next = containerOcc.AccessorOf
		if next == nil {
			next = containerOcc.ChildOf
		}
	}

	outerToInner := make([]string, len(inward))
	for i, n := range inward {
		outerToInner[len(inward)-1-i] = n
	}

	c.mu.Lock()
	c.containerNameCache[occ.Symbol.USR] = outerToInner
	c.mu.Unlock()

	return outerToInner, nil
}

func (c *CheckedIndex) definitionOccurrenceForUSR(ctx context.Context, usr string) (model.Occurrence, bool, error) {
	occ, ok, err := c.PrimaryDefinitionOrDeclarationOccurrence(ctx, usr)
	return occ, ok, err
}
