package posts

import "slices"

// ReactionGroup is the per-emoji aggregate of who reacted to a post or comment.
//
// Count always equals len(UserIds) when the contributor list is fully known.
// A server may hand out a group whose list is partial (Count > len(UserIds));
// the arithmetic below keeps Count >= len(UserIds) in that case.
type ReactionGroup struct {
	Emoji   string   `bson:"emoji" json:"emoji" msgpack:"emoji"`
	Count   int      `bson:"count" json:"count" msgpack:"count"`
	UserIds []string `bson:"user_ids" json:"reactionUserIdList" msgpack:"user_ids"`
}

// Known reports whether every contributor of the group is listed.
func (g ReactionGroup) Known() bool {
	return len(g.UserIds) == g.Count
}

func (g ReactionGroup) ReactedBy(userId string) bool {
	return userId != "" && slices.Contains(g.UserIds, userId)
}

func (g ReactionGroup) Clone() ReactionGroup {
	g.UserIds = slices.Clone(g.UserIds)
	return g
}

// AddContributor records userId as a contributor. Adding a user already
// present is a no-op.
func (g *ReactionGroup) AddContributor(userId string) bool {
	if g.ReactedBy(userId) {
		return false
	}
	g.UserIds = append(g.UserIds, userId)
	g.Count++
	if g.Count < len(g.UserIds) {
		g.Count = len(g.UserIds)
	}
	return true
}

// RemoveContributor removes userId. When the user is not listed the count only
// drops if the group has unlisted contributors, so a repeated removal never
// takes away more than one contribution per user. Count never goes below 0.
func (g *ReactionGroup) RemoveContributor(userId string) bool {
	if i := slices.Index(g.UserIds, userId); i >= 0 {
		g.UserIds = slices.Delete(g.UserIds, i, i+1)
		g.Count--
	} else if g.Count > len(g.UserIds) {
		g.Count--
	} else {
		return false
	}
	if g.Count < 0 {
		g.Count = 0
	}
	return true
}

func FindReaction(groups []ReactionGroup, emoji string) int {
	return slices.IndexFunc(groups, func(g ReactionGroup) bool { return g.Emoji == emoji })
}

func CloneReactions(groups []ReactionGroup) []ReactionGroup {
	if groups == nil {
		return nil
	}
	cloned := make([]ReactionGroup, len(groups))
	for i, g := range groups {
		cloned[i] = g.Clone()
	}
	return cloned
}

// AddReaction adds userId to the emoji's group, creating the group at the end
// of the list when absent.
func AddReaction(groups []ReactionGroup, emoji string, userId string) ([]ReactionGroup, bool) {
	i := FindReaction(groups, emoji)
	if i < 0 {
		return append(groups, ReactionGroup{Emoji: emoji, Count: 1, UserIds: []string{userId}}), true
	}
	return groups, groups[i].AddContributor(userId)
}

// RemoveReaction removes userId from the emoji's group and drops the group
// once it is empty.
func RemoveReaction(groups []ReactionGroup, emoji string, userId string) ([]ReactionGroup, bool) {
	i := FindReaction(groups, emoji)
	if i < 0 {
		return groups, false
	}
	changed := groups[i].RemoveContributor(userId)
	if groups[i].Count == 0 {
		groups = slices.Delete(groups, i, i+1)
	}
	return groups, changed
}

// SetReaction puts g in place of the emoji's group (or removes the group when
// g is nil), keeping the position the group had at index hint.
func SetReaction(groups []ReactionGroup, emoji string, g *ReactionGroup, hint int) []ReactionGroup {
	i := FindReaction(groups, emoji)
	switch {
	case g == nil || g.Count <= 0:
		if i >= 0 {
			groups = slices.Delete(groups, i, i+1)
		}
	case i >= 0:
		groups[i] = g.Clone()
	default:
		if hint < 0 || hint > len(groups) {
			hint = len(groups)
		}
		groups = slices.Insert(groups, hint, g.Clone())
	}
	return groups
}

// NormalizeReactions repairs groups received from outside: duplicate
// contributors are collapsed, counts are raised to cover the listed users and
// empty groups are dropped.
func NormalizeReactions(groups []ReactionGroup) []ReactionGroup {
	normalized := make([]ReactionGroup, 0, len(groups))
	for _, g := range groups {
		g = g.Clone()
		seen := make(map[string]bool, len(g.UserIds))
		g.UserIds = slices.DeleteFunc(g.UserIds, func(id string) bool {
			if seen[id] {
				return true
			}
			seen[id] = true
			return false
		})
		if g.Count < len(g.UserIds) {
			g.Count = len(g.UserIds)
		}
		if g.Count <= 0 {
			continue
		}
		normalized = append(normalized, g)
	}
	return normalized
}
