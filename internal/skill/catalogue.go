package skill

import "github.com/mindatlas/backend/internal/model"

// GeneralChatSkill is the always-available fallback skill: it can be
// hidden from listings but never disabled.
const GeneralChatSkill = "general_chat"

// SystemSkills is the compile-time catalogue of built-in skills. DB rows
// with a matching name layer overrides on top.
func SystemSkills() []model.AssistantSkill {
	return []model.AssistantSkill{
		{
			Name:           GeneralChatSkill,
			Description:    "General conversation and open-ended questions with no specific recall or capture intent.",
			IntentExamples: []string{"你好", "hello", "what can you do?", "tell me a joke"},
			Tools: []string{
				"search_entries", "get_entry_detail", "create_entry",
				"get_statistics", "analyze_activity", "kb_relation_recommendations",
			},
			Mode:     model.SkillModeAgent,
			KBConfig: model.KBConfig{Enabled: true},
			IsSystem: true,
			Enabled:  true,
		},
		{
			Name:           "smart_capture",
			Description:    "Capture a new note or journal entry from the user's message, inferring a title, type, and tags.",
			IntentExamples: []string{"帮我记录一下今天学了 Python 装饰器", "remind me to follow up with Alex", "note: finished chapter 3 of the book"},
			Mode:           model.SkillModeSteps,
			KBConfig:       model.KBConfig{Enabled: false},
			IsSystem:       true,
			Enabled:        true,
			Steps: []model.AssistantSkillStep{
				{
					StepOrder:        1,
					Type:             model.StepAnalysis,
					Instruction:      strPtr("Extract a concise title, a one-paragraph summary, and the full content from {{user_input}}. Respond as JSON with keys title, summary, content."),
					OutputMode:       outputModePtr(model.OutputJSON),
					OutputFields:     []string{"title", "summary", "content"},
					IncludeInSummary: true,
				},
				{
					StepOrder:        2,
					Type:             model.StepTool,
					ToolName:         strPtr("create_entry"),
					ArgsFrom:         argsFromPtr(model.ArgsFromJSON),
					ArgsTemplate:     strPtr(`{"title":"{{step1_title}}","summary":"{{step1_summary}}","content":"{{step1_content}}"}`),
					IncludeInSummary: true,
				},
				{
					StepOrder:        3,
					Type:             model.StepSummary,
					IncludeInSummary: true,
				},
			},
		},
	}
}

func strPtr(s string) *string                            { return &s }
func outputModePtr(m model.OutputMode) *model.OutputMode { return &m }
func argsFromPtr(a model.ArgsSource) *model.ArgsSource   { return &a }

// Catalogue is the merged, visibility-resolved skill set a single request
// sees: system skills layered with DB overrides, minus hidden skills,
// except general_chat which is always selectable.
type Catalogue struct {
	skills map[string]model.AssistantSkill
	order  []string
}

// BuildCatalogue merges system skills with DB rows: a DB row with the same
// name as a system skill overrides it in place; a DB row with enabled=false
// hides a system skill EXCEPT general_chat, and hides a
// non-system DB skill outright.
func BuildCatalogue(dbSkills []model.AssistantSkill) *Catalogue {
	c := &Catalogue{skills: make(map[string]model.AssistantSkill)}

	for _, s := range SystemSkills() {
		c.skills[s.Name] = s
		c.order = append(c.order, s.Name)
	}

	dbByName := make(map[string]model.AssistantSkill, len(dbSkills))
	for _, s := range dbSkills {
		dbByName[s.Name] = s
	}

	for name, override := range dbByName {
		if _, isSystem := c.skills[name]; isSystem {
			if !override.Enabled && name == GeneralChatSkill {
				// general_chat stays selectable even if its DB row disables it.
				continue
			}
			if !override.Enabled {
				delete(c.skills, name)
				continue
			}
			c.skills[name] = override
			continue
		}
		if override.Enabled {
			c.skills[name] = override
			c.order = append(c.order, name)
		}
	}

	return c
}

// Get returns a skill by name, if visible in this catalogue.
func (c *Catalogue) Get(name string) (model.AssistantSkill, bool) {
	s, ok := c.skills[name]
	return s, ok
}

// Names returns the catalogue in stable insertion order (system skills
// first), for listings such as the admin skill list.
func (c *Catalogue) Names() []string {
	out := make([]string, 0, len(c.order))
	for _, n := range c.order {
		if _, ok := c.skills[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Descriptions returns name -> description for every visible skill, for
// the router prompt.
func (c *Catalogue) Descriptions() map[string]string {
	out := make(map[string]string, len(c.skills))
	for name, s := range c.skills {
		out[name] = s.Description
	}
	return out
}
