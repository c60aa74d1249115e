package github

// User is a GitHub account, human or bot.
type User struct {
	Login string `json:"login"`
	Type  string `json:"type"`
	ID    int64  `json:"id"`
}

// Repository identifies a repository and the state the decision core
// cares about.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
	Owner    User   `json:"owner"`
	Archived bool   `json:"archived"`
}

// Branch is a pull request endpoint: a ref within a repository.
type Branch struct {
	Ref  string     `json:"ref"`
	SHA  string     `json:"sha"`
	Repo Repository `json:"repo"`
}

// PullRequest carries the pull-request fields the decision core reads:
// identity, endpoints, and merge state.
type PullRequest struct {
	MergedBy *User  `json:"merged_by"`
	Base     Branch `json:"base"`
	Head     Branch `json:"head"`
	Number   int    `json:"number"`
	Merged   bool   `json:"merged"`
}
