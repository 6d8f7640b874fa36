package graph

import "unicode/utf8"

// InvalidText returns the name of the first field whose value is not valid
// UTF-8, or "" when all are valid. Fields are given as name, value pairs.
func InvalidText(fields ...string) string {
	for i := 0; i+1 < len(fields); i += 2 {
		if !utf8.ValidString(fields[i+1]) {
			return fields[i]
		}
	}
	return ""
}

func invalidTextIn(name string, values []string) string {
	for _, v := range values {
		if !utf8.ValidString(v) {
			return name
		}
	}
	return ""
}

func (n EpisodeNode) invalidText() string {
	return InvalidText(
		"id", n.ID,
		"instance_id", n.InstanceID,
		"thought", n.Thought,
		"action", n.Action,
		"action_type", n.ActionType,
		"observation", n.Observation,
	)
}

func (n SemanticNode) invalidText() string {
	return InvalidText(
		"id", n.ID,
		"name", n.Name,
		"file_path", n.FilePath,
		"summary", n.Summary,
	)
}

func (n CommunityNode) invalidText() string {
	if f := InvalidText("id", n.ID, "name", n.Name, "summary", n.Summary); f != "" {
		return f
	}
	if f := invalidTextIn("keywords", n.Keywords); f != "" {
		return f
	}
	return invalidTextIn("member_ids", n.MemberIDs)
}

func (e Edge) invalidText() string {
	if f := InvalidText("id", e.ID, "fact", e.Fact); f != "" {
		return f
	}
	return invalidTextIn("source_episode_ids", e.SourceEpisodeIDs)
}
