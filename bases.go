package knograph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knograph/knograph/store"
)

// TagInput names a tag to attach, creating it on first use. An empty
// color keeps the existing color or falls back to the default.
type TagInput struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// BaseInfo is a knowledge base with its tags and runtime settings.
type BaseInfo struct {
	store.Base
	Tags     []store.TagDef  `json:"tags"`
	Settings RuntimeSettings `json:"settings"`
}

// CreateBaseRequest describes a new knowledge base.
type CreateBaseRequest struct {
	Name        string
	Description string
	Icon        string
	Visibility  string // private, team, public; empty means private
	Tags        []TagInput
	Settings    *RuntimeSettingsPatch
}

// BaseUpdate is a partial base update. Nil fields keep stored values; a
// non-nil Tags slice replaces the tag set.
type BaseUpdate struct {
	Name        *string
	Description *string
	Icon        *string
	Visibility  *string
	Tags        []TagInput
}

// BasePage is one page of an agent's bases.
type BasePage struct {
	Total    int        `json:"total"`
	Returned int        `json:"returned"`
	Offset   int        `json:"offset"`
	Bases    []BaseInfo `json:"bases"`
}

// ListBasesOptions filters and pages ListBases. Tags match by name.
type ListBasesOptions struct {
	Search     string
	Visibility string
	Tags       []string
	Limit      int
	Offset     int
}

// CreateBase creates a knowledge base with optional tags and settings.
func (m *Manager) CreateBase(ctx context.Context, agentID string, req CreateBaseRequest) (*BaseInfo, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	visibility := req.Visibility
	if visibility == "" {
		visibility = "private"
	}
	if !validVisibility(visibility) {
		return nil, fmt.Errorf("%w: visibility %q", ErrInvalid, visibility)
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	exists, err := st.BaseNameExists(ctx, agentID, name, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	now := time.Now().UnixMilli()
	kbID := store.HashText(fmt.Sprintf("%s:%s:%d", agentID, name, now))
	if err := st.InsertBase(ctx, store.Base{
		ID:           kbID,
		OwnerAgentID: agentID,
		Name:         name,
		Description:  req.Description,
		Icon:         req.Icon,
		Visibility:   visibility,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return nil, err
	}

	settings := DefaultRuntimeSettings()
	if req.Settings != nil {
		merged, err := m.UpdateBaseSettings(ctx, agentID, kbID, *req.Settings)
		if err != nil {
			return nil, err
		}
		settings = *merged
	} else if err := m.writeBaseRuntimeSettings(ctx, st, kbID, settings); err != nil {
		return nil, err
	}

	if err := m.setBaseTags(ctx, st, agentID, kbID, req.Tags); err != nil {
		return nil, err
	}
	return m.baseInfo(ctx, st, agentID, kbID)
}

// GetBase returns one base with tags and settings. With an empty kbID a
// sole owned base is implied. Returns nil when no base matches.
func (m *Manager) GetBase(ctx context.Context, agentID, kbID string) (*BaseInfo, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	if kbID == "" {
		owned, err := st.BaseIDs(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if len(owned) != 1 {
			return nil, nil
		}
		kbID = owned[0]
	}
	base, err := st.GetBase(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if base == nil || base.OwnerAgentID != agentID {
		return nil, nil
	}
	return m.baseInfo(ctx, st, agentID, kbID)
}

// UpdateBase applies a partial update to a base's descriptive fields.
func (m *Manager) UpdateBase(ctx context.Context, agentID, kbID string, upd BaseUpdate) (*BaseInfo, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	base, err := st.GetBase(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if base == nil || base.OwnerAgentID != agentID {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, kbID)
	}
	if upd.Visibility != nil && !validVisibility(*upd.Visibility) {
		return nil, fmt.Errorf("%w: visibility %q", ErrInvalid, *upd.Visibility)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		if name != base.Name {
			exists, err := st.BaseNameExists(ctx, agentID, name, base.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
			}
		}
		upd.Name = &name
	}
	if err := st.UpdateBase(ctx, kbID, upd.Name, upd.Description, upd.Icon, upd.Visibility,
		time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	if upd.Tags != nil {
		if err := m.setBaseTags(ctx, st, agentID, kbID, upd.Tags); err != nil {
			return nil, err
		}
	}
	return m.baseInfo(ctx, st, agentID, kbID)
}

// DeleteBase removes a base row; settings, tag links, and settings rows
// cascade. Documents and graph entries are left in place. A missing base
// reports false without error.
func (m *Manager) DeleteBase(ctx context.Context, agentID, kbID string) (bool, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return false, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return false, err
	}
	base, err := st.GetBase(ctx, kbID)
	if err != nil {
		return false, err
	}
	if base == nil || base.OwnerAgentID != agentID {
		return false, nil
	}
	if err := st.DeleteBase(ctx, kbID); err != nil {
		return false, err
	}
	return true, nil
}

// ListBases returns a filtered page of the agent's bases with tags and
// settings attached.
func (m *Manager) ListBases(ctx context.Context, agentID string, opts ListBasesOptions) (*BasePage, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}

	var tagIDs []string
	if len(opts.Tags) > 0 {
		for _, name := range opts.Tags {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			def, err := st.GetTagDefByName(ctx, agentID, name)
			if err != nil {
				return nil, err
			}
			if def != nil {
				tagIDs = append(tagIDs, def.ID)
			}
		}
		if len(tagIDs) == 0 {
			// Tag filter names nothing this agent has.
			return &BasePage{Offset: opts.Offset, Bases: []BaseInfo{}}, nil
		}
	}

	bases, total, err := st.ListBases(ctx, agentID, store.ListBasesOptions{
		Search:     opts.Search,
		Visibility: opts.Visibility,
		TagIDs:     tagIDs,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	page := &BasePage{Total: total, Returned: len(bases), Offset: opts.Offset, Bases: make([]BaseInfo, 0, len(bases))}
	for _, b := range bases {
		info, err := m.baseInfo(ctx, st, agentID, b.ID)
		if err != nil {
			return nil, err
		}
		page.Bases = append(page.Bases, *info)
	}
	return page, nil
}

// ListTags returns the agent's tag definitions.
func (m *Manager) ListTags(ctx context.Context, agentID string) ([]store.TagDef, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	return st.ListTagDefs(ctx, agentID)
}

// CreateTag creates a tag definition.
func (m *Manager) CreateTag(ctx context.Context, agentID, name, color string) (*store.TagDef, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", ErrInvalid)
	}
	normalized, err := normalizeTagColor(color)
	if err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	existing, err := st.GetTagDefByName(ctx, agentID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: tag %s", ErrDuplicate, name)
	}
	now := time.Now().UnixMilli()
	def := store.TagDef{
		ID:           store.HashText(fmt.Sprintf("%s:tag:%s:%d", agentID, name, now)),
		OwnerAgentID: agentID,
		Name:         name,
		Color:        normalized,
		CreatedAt:    now,
	}
	if err := st.InsertTagDef(ctx, def); err != nil {
		return nil, err
	}
	return &def, nil
}

// UpdateTag renames or recolors a tag definition.
func (m *Manager) UpdateTag(ctx context.Context, agentID, tagID string, name, color *string) (*store.TagDef, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	def, err := st.GetTagDef(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if def == nil || def.OwnerAgentID != agentID {
		return nil, fmt.Errorf("%w: tag %s", ErrNotFound, tagID)
	}
	if name != nil {
		next := strings.TrimSpace(*name)
		if next == "" {
			return nil, fmt.Errorf("%w: tag name is required", ErrInvalid)
		}
		dup, err := st.GetTagDefByName(ctx, agentID, next)
		if err != nil {
			return nil, err
		}
		if dup != nil && dup.ID != def.ID {
			return nil, fmt.Errorf("%w: tag %s", ErrDuplicate, next)
		}
		name = &next
	}
	if color != nil {
		normalized, err := normalizeTagColor(*color)
		if err != nil {
			return nil, err
		}
		color = &normalized
	}
	if err := st.UpdateTagDef(ctx, tagID, name, color); err != nil {
		return nil, err
	}
	return st.GetTagDef(ctx, tagID)
}

// DeleteTag removes a tag definition; base links cascade. A missing tag
// reports false without error.
func (m *Manager) DeleteTag(ctx context.Context, agentID, tagID string) (bool, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return false, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return false, err
	}
	def, err := st.GetTagDef(ctx, tagID)
	if err != nil {
		return false, err
	}
	if def == nil || def.OwnerAgentID != agentID {
		return false, nil
	}
	if err := st.DeleteTagDef(ctx, tagID); err != nil {
		return false, err
	}
	return true, nil
}

// SetBaseTags replaces a base's tag set, creating tag definitions on
// first use, and returns the new set.
func (m *Manager) SetBaseTags(ctx context.Context, agentID, kbID string, tags []TagInput) ([]store.TagDef, error) {
	if _, err := m.requireConfig(agentID); err != nil {
		return nil, err
	}
	st, err := m.stores.ForAgent(agentID)
	if err != nil {
		return nil, err
	}
	if _, err := m.resolveBaseID(ctx, st, agentID, kbID); err != nil {
		return nil, err
	}
	if err := m.setBaseTags(ctx, st, agentID, kbID, tags); err != nil {
		return nil, err
	}
	return st.BaseTags(ctx, kbID)
}

func (m *Manager) setBaseTags(ctx context.Context, st *store.Store, agentID, kbID string, tags []TagInput) error {
	seen := map[string]bool{}
	var tagIDs []string
	for _, tag := range tags {
		name := strings.TrimSpace(tag.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		id, err := m.ensureTag(ctx, st, agentID, name, tag.Color)
		if err != nil {
			return err
		}
		tagIDs = append(tagIDs, id)
	}
	return st.SetBaseTags(ctx, kbID, tagIDs)
}

// ensureTag finds or creates the agent's tag definition for a name. An
// explicit color overrides the stored one.
func (m *Manager) ensureTag(ctx context.Context, st *store.Store, agentID, name, color string) (string, error) {
	normalized, err := normalizeTagColor(color)
	if err != nil {
		return "", err
	}
	existing, err := st.GetTagDefByName(ctx, agentID, name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		if normalized != "" && normalized != existing.Color {
			if err := st.UpdateTagDef(ctx, existing.ID, nil, &normalized); err != nil {
				return "", err
			}
		}
		return existing.ID, nil
	}
	if normalized == "" {
		normalized = DefaultTagColor
	}
	now := time.Now().UnixMilli()
	def := store.TagDef{
		ID:           store.HashText(fmt.Sprintf("%s:tag:%s:%d", agentID, name, now)),
		OwnerAgentID: agentID,
		Name:         name,
		Color:        normalized,
		CreatedAt:    now,
	}
	if err := st.InsertTagDef(ctx, def); err != nil {
		return "", err
	}
	return def.ID, nil
}

func (m *Manager) baseInfo(ctx context.Context, st *store.Store, agentID, kbID string) (*BaseInfo, error) {
	base, err := st.GetBase(ctx, kbID)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, fmt.Errorf("%w: knowledge base %s", ErrNotFound, kbID)
	}
	tags, err := st.BaseTags(ctx, kbID)
	if err != nil {
		return nil, err
	}
	settings, err := m.baseRuntimeSettings(ctx, st, kbID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []store.TagDef{}
	}
	return &BaseInfo{Base: *base, Tags: tags, Settings: *settings}, nil
}

func validVisibility(v string) bool {
	return v == "private" || v == "team" || v == "public"
}
