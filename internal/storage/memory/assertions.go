package memory

import "github.com/tinoosan/tillbook/internal/docstore"

// Compile-time interface assertion documenting which interface Store satisfies.
var _ docstore.ReadyStore = (*Store)(nil)
