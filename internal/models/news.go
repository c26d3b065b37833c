package models

// NewsPost is one headline entry from the news source. Only Title is displayed.
type NewsPost struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}
