package render

// ReportTemplate is the file name of the session report template.
const ReportTemplate = "report.md"

var builtins = map[string]string{
	ReportTemplate: reportTemplate,
}

const reportTemplate = `# Session {{session_id}}

- Status: {{status}}
- Started: {{started_at}}
- Duration: {{duration}}
- Websites: {{websites_succeeded}}/{{websites_tested}} succeeded, {{websites_failed}} failed

## Quality

| metric | value |
|---|---|
| average score | {{average_score}} |
| best score | {{best_score}} |
| worst score | {{worst_score}} |
| command success rate | {{command_success_rate}} |
| learnings generated | {{learnings_generated}} |
{{#if improvement}}
Change from previous session: {{improvement}}
{{/if}}{{#unless improvement}}
No earlier session report to compare against.
{{/unless}}
## Websites

{{websites}}
{{#if top_learnings}}
## Top learnings

{{top_learnings}}
{{/if}}
{{#if recommendations}}
## Recommendations

{{recommendations}}
{{/if}}
{{#if insights}}
## Reflection

{{insights}}
{{/if}}
`
