package mocks

import (
	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// Compile-time checks that the mocks satisfy the interfaces they stand in for.
var (
	_ schemas.ConfigStore       = (*MockConfigStore)(nil)
	_ schemas.StaleConfigLister = (*MockConfigStore)(nil)
	_ schemas.SkillStore        = (*MockSkillStore)(nil)
	_ schemas.ReportStore       = (*MockReportStore)(nil)
	_ schemas.ConfigCache       = (*MockConfigCache)(nil)
	_ schemas.ModelResearcher   = (*MockResearcher)(nil)
	_ schemas.Alerter           = (*MockAlerter)(nil)
	_ schemas.AnalysisProvider  = (*MockAnalysisProvider)(nil)
	_ schemas.LocationEnhancer  = (*MockLocationEnhancer)(nil)
	_ schemas.Educator          = (*MockEducator)(nil)
	_ schemas.ReportRenderer    = (*MockReportRenderer)(nil)
	_ schemas.LLMClient         = (*MockLLMClient)(nil)
)
