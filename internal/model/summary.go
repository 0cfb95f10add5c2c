package model

// Summary is the renderer-facing digest of a forecast: the current block,
// the hourly strip and the wind/humidity and clouds/temperature panels.
type Summary struct {
	Current      CurrentSummary      `json:"current"`
	Hourly       []HourlySummary     `json:"hourly"`
	Wind         WindSummary         `json:"wind"`
	Humidity     HumiditySummary     `json:"humidity"`
	Clouds       CloudsSummary       `json:"clouds"`
	Temperatures TemperaturesSummary `json:"temperatures"`
}

type CurrentSummary struct {
	City        string `json:"city"`
	Country     string `json:"country"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type HourlySummary struct {
	Hour        string `json:"hour"`
	Temperature string `json:"temperature"`
	Icon        string `json:"icon"`
}

type WindSummary struct {
	Speed  float64 `json:"speed"`
	Degree int     `json:"degree"`
}

type HumiditySummary struct {
	Level    int `json:"level"`
	Pressure int `json:"pressure"`
}

type CloudsSummary struct {
	Percentage  int    `json:"percentage"`
	Description string `json:"description"`
}

type TemperaturesSummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Summarize builds the digest for r. It returns nil when r has no periods.
func Summarize(r *ForecastResult) *Summary {
	current, ok := r.Current()
	if !ok {
		return nil
	}
	cond := current.Condition()

	s := &Summary{
		Current: CurrentSummary{
			City:        r.City.Name,
			Country:     r.City.Country,
			Temperature: PrettyTemperature(current.Main.Temp),
			Condition:   cond.Main,
			Description: cond.Description,
			Icon:        cond.Icon,
		},
		Hourly:       make([]HourlySummary, 0, len(r.Periods)),
		Wind:         WindSummary{Speed: current.Wind.Speed, Degree: current.Wind.Deg},
		Humidity:     HumiditySummary{Level: current.Main.Humidity, Pressure: current.Main.Pressure},
		Clouds:       CloudsSummary{Percentage: current.Clouds.All, Description: cond.Description},
		Temperatures: TemperaturesSummary{Min: current.Main.TempMin, Max: current.Main.TempMax},
	}
	for _, p := range r.Periods {
		s.Hourly = append(s.Hourly, HourlySummary{
			Hour:        p.Hour(),
			Temperature: PrettyTemperature(p.Main.Temp),
			Icon:        p.Condition().Icon,
		})
	}
	return s
}
