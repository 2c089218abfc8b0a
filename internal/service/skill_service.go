package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/gema-submission-gateway/internal/dto"
	"github.com/noah-isme/gema-submission-gateway/internal/models"
)

// UntaggedSkill is the bucket for assignments without a skill tag.
const UntaggedSkill = "untagged"

const untaggedLabel = "Other"

func skillKey(tag string) string {
	key := strings.ToLower(strings.TrimSpace(tag))
	if key == "" {
		return UntaggedSkill
	}
	return key
}

// MatchesSkill compares a tag with a filter, ignoring case. The filter "untagged" selects
// assignments without a tag.
func MatchesSkill(tag, filter string) bool {
	return skillKey(tag) == skillKey(filter)
}

// FilterBySkill keeps the assignments tagged with skill. An empty skill keeps everything.
func FilterBySkill(assignments []models.Assignment, skill string) []models.Assignment {
	if strings.TrimSpace(skill) == "" {
		return assignments
	}
	filtered := make([]models.Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		if MatchesSkill(assignment.SkillTag, skill) {
			filtered = append(filtered, assignment)
		}
	}
	return filtered
}

// GroupBySkill partitions views by skill tag. Groups are ordered by name with the untagged
// bucket last; each group is ordered by due date, keeping input order for equal dates.
func GroupBySkill(views []dto.AssignmentStatusResponse) []dto.SkillGroupResponse {
	index := make(map[string]int)
	groups := make([]dto.SkillGroupResponse, 0)
	for _, view := range views {
		key := skillKey(view.SkillTag)
		position, ok := index[key]
		if !ok {
			label := strings.TrimSpace(view.SkillTag)
			if key == UntaggedSkill {
				label = untaggedLabel
			}
			groups = append(groups, dto.SkillGroupResponse{SkillTag: key, Label: label})
			position = len(groups) - 1
			index[key] = position
		}
		groups[position].Assignments = append(groups[position].Assignments, view)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		left, right := groups[i].SkillTag, groups[j].SkillTag
		if left == UntaggedSkill || right == UntaggedSkill {
			return right == UntaggedSkill && left != UntaggedSkill
		}
		return left < right
	})
	for i := range groups {
		assignments := groups[i].Assignments
		sort.SliceStable(assignments, func(a, b int) bool {
			return assignments[a].DueDate.Before(assignments[b].DueDate)
		})
	}
	return groups
}
