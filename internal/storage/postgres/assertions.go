package postgres

import "github.com/tinoosan/tillbook/internal/docstore"

var _ docstore.ReadyStore = (*Store)(nil)
