package memory

import (
	"monetary_core/internal/repository"
)

var (
	_ repository.ResultRepository = (*ResultRepository)(nil)
	_ repository.RuleRepository   = (*RuleRepository)(nil)
)
