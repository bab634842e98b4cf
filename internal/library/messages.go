package library

// User-facing notification titles.
const (
	MsgPromptCreated    = "Prompt created successfully!"
	MsgPromptUpdated    = "Prompt updated successfully!"
	MsgPromptDeleted    = "Prompt deleted successfully!"
	MsgFavoriteUpdated  = "Favorite status updated!"
	MsgUsageUpdated     = "Usage count updated!"
	MsgDataImported     = "Data imported successfully!"
	MsgDataCleared      = "All data cleared successfully!"
	MsgValidationFailed = "Validation failed"
	MsgFavoriteFailed   = "Failed to update favorite status."
	MsgUsageFailed      = "Failed to update usage count."
)
