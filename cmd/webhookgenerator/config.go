package main

type config struct {
	BaseURL        string `mapstructure:"base_url"`
	Secret         string `mapstructure:"secret"`
	ProjectSlug    string `mapstructure:"project_slug"`
	JobName        string `mapstructure:"job_name"`
	JobNumber      int    `mapstructure:"job_number"`
	WorkflowStatus string `mapstructure:"workflow_status"`
	Interval       string `mapstructure:"interval"`
}
