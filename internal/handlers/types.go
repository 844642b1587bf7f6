package handlers

import "time"

// LinkBody describes a stored link.
type LinkBody struct {
	Code        string     `doc:"The short code"                  example:"abc123"                       json:"code"`
	ShortURL    string     `doc:"The full short URL"              example:"http://localhost:8888/abc123" json:"shortUrl"`
	Destination string     `doc:"The destination URL"             example:"https://example.com/long/path" json:"destination"`
	ExpiresAt   *time.Time `doc:"When the link stops redirecting" json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `doc:"When the link was created"       json:"createdAt"`
}

// ShortenRequest is the request body for creating a short link.
type ShortenRequest struct {
	Body struct {
		URL        string `doc:"The URL to shorten"                  example:"https://example.com/long/path" json:"url"                  minLength:"1"`
		CustomCode string `doc:"Alias to use instead of a random code" example:"docs"                         json:"customCode,omitempty" maxLength:"64"`
		Expiry     string `doc:"Lifetime: 1min, 1h, 1d, 1w or 1m"     example:"1d"                           json:"expiry,omitempty"`
	}
}

// ShortenResponse is the response for a successfully created short link.
type ShortenResponse struct {
	Headers struct {
		Location string `doc:"The short URL location" header:"Location"`
	}
	Body LinkBody
}

// IndexRequest lets a link be created from the address bar.
type IndexRequest struct {
	URL        string `doc:"The URL to shorten; omit to get the landing page" query:"url"`
	CustomCode string `doc:"Alias to use instead of a random code"            query:"custom_code"`
	Expiry     string `doc:"Lifetime: 1min, 1h, 1d, 1w or 1m"                 query:"expiry"`
}

// IndexResponse is the landing page, or the created link when a URL was given.
type IndexResponse struct {
	Body struct {
		Message string    `json:"message"`
		Link    *LinkBody `json:"link,omitempty"`
	}
}

// HomeResponse is the landing page.
type HomeResponse struct {
	Body struct {
		Message   string   `json:"message"`
		Endpoints []string `json:"endpoints"`
	}
}

// RedirectRequest is the request for following a short link.
type RedirectRequest struct {
	Code string `doc:"The short code" example:"abc123" path:"code"`
}

// RedirectResponse sends the client on to the destination.
type RedirectResponse struct {
	Status  int
	Headers struct {
		Location     string `header:"Location"`
		CacheControl string `header:"Cache-Control"`
	}
}

// AnalyticsRequest identifies a link by its short URL or bare code.
type AnalyticsRequest struct {
	URL string `doc:"Short URL or code" example:"http://localhost:8888/abc123" minLength:"1" query:"url" required:"true"`
}

// AnalyticsResponse summarizes the clicks of a link.
type AnalyticsResponse struct {
	Body struct {
		Code           string      `json:"code"`
		Destination    string      `json:"destination"`
		ExpiresAt      *time.Time  `json:"expiresAt,omitempty"`
		TotalClicks    int         `json:"totalClicks"`
		UniqueVisitors int         `json:"uniqueVisitors"`
		TimeHistory    []time.Time `json:"timeHistory"`
	}
}

// DeleteRequest identifies the link to remove.
type DeleteRequest struct {
	Body struct {
		URL string `doc:"Short URL or code" example:"http://localhost:8888/abc123" json:"url" minLength:"1"`
	}
}

// DeleteResponse confirms a removal.
type DeleteResponse struct {
	Body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
}
