package domain

// User is a requester or translator as seen through the directory.
type User struct {
	ID          int64
	Name        string
	Email       string
	LanguageIDs []int64
}
