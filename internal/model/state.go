package model

// StateKind tags the active UI state.
type StateKind int

const (
	StateIdle StateKind = iota
	StateLoading
	StateLoaded
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	}
	return "unknown"
}

func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UIState is the single observable state the presentation layer renders.
// Forecast is set only for StateLoaded, Reason only for StateError.
type UIState struct {
	Kind     StateKind       `json:"state"`
	Forecast *ForecastResult `json:"-"`
	Reason   string          `json:"reason,omitempty"`
	FetchID  string          `json:"fetch_id,omitempty"`
}

func Idle() UIState { return UIState{Kind: StateIdle} }

func Loading(fetchID string) UIState { return UIState{Kind: StateLoading, FetchID: fetchID} }

func Loaded(result *ForecastResult, fetchID string) UIState {
	return UIState{Kind: StateLoaded, Forecast: result, FetchID: fetchID}
}

func Failed(reason string) UIState { return UIState{Kind: StateError, Reason: reason} }

// Equal reports whether two states would render identically.
func (s UIState) Equal(o UIState) bool {
	return s.Kind == o.Kind && s.Forecast == o.Forecast && s.Reason == o.Reason && s.FetchID == o.FetchID
}
