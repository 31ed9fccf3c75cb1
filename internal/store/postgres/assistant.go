package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mindatlas/backend/internal/model"
)

// AssistantRepo reads the DB half of the skill/tool catalogue:
// enabled DB skills and tools, merged by the router/executor with the
// system-defined catalogue at call time.
type AssistantRepo struct{ db *sql.DB }

func (r *AssistantRepo) ListTools(ctx context.Context) ([]model.AssistantTool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description, kind, enabled, endpoint_url, method, headers, query_params,
		       body_type, body_content, payload_wrapper, auth, bearer_token, basic_user, basic_pass,
		       api_key_header, api_key_value, timeout_sec
		FROM assistant_tools
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AssistantTool
	for rows.Next() {
		var t model.AssistantTool
		var kind string
		var endpoint, method, bodyType, bodyContent, payloadWrapper, auth, bearer, basicUser, basicPass, apiKeyHeader, apiKeyValue sql.NullString
		var headersRaw, queryParamsRaw []byte
		var timeoutSec sql.NullInt64
		if err := rows.Scan(&t.Name, &t.Description, &kind, &t.Enabled, &endpoint, &method, &headersRaw, &queryParamsRaw,
			&bodyType, &bodyContent, &payloadWrapper, &auth, &bearer, &basicUser, &basicPass,
			&apiKeyHeader, &apiKeyValue, &timeoutSec); err != nil {
			return nil, err
		}
		t.Kind = model.ToolKind(kind)
		if t.Kind == model.ToolKindRemote {
			rc := &model.RemoteToolConfig{
				EndpointURL:    endpoint.String,
				Method:         method.String,
				BodyType:       model.BodyType(bodyType.String),
				BodyContent:    bodyContent.String,
				PayloadWrapper: payloadWrapper.String,
				Auth:           model.AuthKind(auth.String),
				BearerToken:    bearer.String,
				BasicUser:      basicUser.String,
				BasicPass:      basicPass.String,
				APIKeyHeader:   apiKeyHeader.String,
				APIKeyValue:    apiKeyValue.String,
				TimeoutSec:     int(timeoutSec.Int64),
			}
			if len(headersRaw) > 0 {
				_ = json.Unmarshal(headersRaw, &rc.Headers)
			}
			if len(queryParamsRaw) > 0 {
				_ = json.Unmarshal(queryParamsRaw, &rc.QueryParams)
			}
			t.Remote = rc
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AssistantRepo) ListSkills(ctx context.Context) ([]model.AssistantSkill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, description, intent_examples, tools, mode, system_prompt, kb_enabled, is_system, enabled
		FROM assistant_skills
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AssistantSkill
	for rows.Next() {
		var s model.AssistantSkill
		var mode string
		var systemPrompt sql.NullString
		var intentExamplesRaw, toolsRaw []byte
		if err := rows.Scan(&s.Name, &s.Description, &intentExamplesRaw, &toolsRaw, &mode, &systemPrompt, &s.KBConfig.Enabled, &s.IsSystem, &s.Enabled); err != nil {
			return nil, err
		}
		s.Mode = model.SkillMode(mode)
		if systemPrompt.Valid {
			s.SystemPrompt = &systemPrompt.String
		}
		if len(intentExamplesRaw) > 0 {
			_ = json.Unmarshal(intentExamplesRaw, &s.IntentExamples)
		}
		if len(toolsRaw) > 0 {
			_ = json.Unmarshal(toolsRaw, &s.Tools)
		}

		steps, err := r.listSteps(ctx, s.Name)
		if err != nil {
			return nil, err
		}
		s.Steps = steps

		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *AssistantRepo) listSteps(ctx context.Context, skillName string) ([]model.AssistantSkillStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step_order, type, instruction, tool_name, args_from, args_template, output_mode, output_fields, include_in_summary
		FROM assistant_skill_steps WHERE skill_name = $1 ORDER BY step_order
	`, skillName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AssistantSkillStep
	for rows.Next() {
		var st model.AssistantSkillStep
		var typ string
		var instruction, toolName, argsFrom, argsTemplate, outputMode sql.NullString
		var outputFieldsRaw []byte
		if err := rows.Scan(&st.StepOrder, &typ, &instruction, &toolName, &argsFrom, &argsTemplate, &outputMode, &outputFieldsRaw, &st.IncludeInSummary); err != nil {
			return nil, err
		}
		st.Type = model.StepType(typ)
		if instruction.Valid {
			st.Instruction = &instruction.String
		}
		if toolName.Valid {
			st.ToolName = &toolName.String
		}
		if argsFrom.Valid {
			src := model.ArgsSource(argsFrom.String)
			st.ArgsFrom = &src
		}
		if argsTemplate.Valid {
			st.ArgsTemplate = &argsTemplate.String
		}
		if outputMode.Valid {
			om := model.OutputMode(outputMode.String)
			st.OutputMode = &om
		}
		if len(outputFieldsRaw) > 0 {
			_ = json.Unmarshal(outputFieldsRaw, &st.OutputFields)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
