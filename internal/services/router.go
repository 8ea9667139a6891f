package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
)

// SkillRouter chooses the best skill for an autoCreateTask goal: an LLM
// JSON classifier when a provider is configured, falling back to a
// keyword-overlap heuristic when it isn't or when the classifier fails
// or returns an id outside the candidate set.
type SkillRouter struct {
	Provider llm.ChatProvider
	Model    string
}

var whitespaceRE = regexp.MustCompile(`\s+`)
var tokenSplitRE = regexp.MustCompile(`[^a-z0-9\x{4e00}-\x{9fff}]+`)

// keywordGroup is a weighted cluster of synonyms (English and Chinese)
// that all point at the same kind of skill.
type keywordGroup struct {
	words  []string
	weight int
}

var keywordGroups = []keywordGroup{
	{[]string{"research", "report", "paper", "survey", "search", "crawl", "deep research", "调研", "研究", "论文", "报告", "检索"}, 3},
	{[]string{"file", "folder", "cleanup", "organize", "整理", "归档", "文件", "目录"}, 3},
	{[]string{"media", "image", "audio", "video", "生成", "配音", "图片", "视频", "音频"}, 2},
	{[]string{"code", "build", "debug", "repo", "项目", "代码", "修复", "开发"}, 2},
}

func normalize(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(strings.ToLower(s), " "))
}

// Choose returns the id of the best skill for goal. It never returns an
// error for a non-empty skills slice: routing failures fall through to
// the heuristic, and the heuristic always picks something.
func (r *SkillRouter) Choose(ctx context.Context, goal, hint string, mode models.Mode, skills []models.Skill) (string, error) {
	if len(skills) == 0 {
		return "", NewValidationError("skills", "no skills available")
	}
	if len(skills) == 1 {
		return skills[0].ID, nil
	}
	if r.Provider == nil {
		return heuristicChoose(goal, skills), nil
	}

	id, err := r.llmChoose(ctx, goal, hint, skills)
	if err != nil || id == "" {
		return heuristicChoose(goal, skills), nil
	}
	return id, nil
}

type routerOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type routerRequest struct {
	Goal   string         `json:"goal"`
	Skills []routerOption `json:"skills"`
	Hint   string         `json:"hint,omitempty"`
}

type routerResponse struct {
	SkillID string `json:"skill_id"`
	Reason  string `json:"reason"`
}

func (r *SkillRouter) llmChoose(ctx context.Context, goal, hint string, skills []models.Skill) (string, error) {
	options := make([]routerOption, 0, len(skills))
	for _, sk := range skills {
		options = append(options, routerOption{ID: sk.ID, Name: sk.Name, Description: sk.Description})
	}
	userPayload, err := json.Marshal(routerRequest{Goal: goal, Skills: options, Hint: hint})
	if err != nil {
		return "", fmt.Errorf("services: marshal router request: %w", err)
	}

	resp, err := r.Provider.Chat(ctx, llm.Request{
		Model: r.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a router that selects the best skill for the user's goal.\n" +
				"Pick exactly ONE skill id from the provided list.\n" +
				`Return ONLY JSON: {"skill_id": "...", "reason": "..."}` + "\n" +
				"Do not include any other keys."},
			{Role: llm.RoleUser, Content: string(userPayload)},
		},
		Temperature:    0,
		JSONObjectMode: true,
		TimeoutSeconds: 4,
	})
	if err != nil {
		return "", err
	}

	var parsed routerResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return "", fmt.Errorf("services: parse router response: %w", err)
	}
	for _, sk := range skills {
		if sk.ID == parsed.SkillID {
			return parsed.SkillID, nil
		}
	}
	return "", fmt.Errorf("services: router chose unknown skill id %q", parsed.SkillID)
}

// heuristicChoose scores each skill by keyword overlap between the goal
// and the skill's name/description/source file, falling back to the
// first skill when nothing scores above zero.
func heuristicChoose(goal string, skills []models.Skill) string {
	g := normalize(goal)
	if g == "" {
		return skills[0].ID
	}

	bestID := skills[0].ID
	bestScore := -1
	for _, sk := range skills {
		text := normalize(strings.Join([]string{sk.Name, sk.Description, sk.SourceFile}, " "))
		score := 0
		for _, grp := range keywordGroups {
			for _, word := range grp.words {
				if strings.Contains(g, word) && strings.Contains(text, word) {
					score += grp.weight
				}
			}
		}
		for _, token := range uniqueTokens(g) {
			if len(token) >= 2 && strings.Contains(text, token) {
				score++
			}
		}
		if score > bestScore {
			bestID, bestScore = sk.ID, score
		}
	}
	return bestID
}

func uniqueTokens(s string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range tokenSplitRE.Split(s, -1) {
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
