package agents

// AgentSummary is the per-agent record published in each round snapshot.
type AgentSummary struct {
	ID                AgentID `json:"id"`
	Name              string  `json:"name"`
	Age               int     `json:"age"`
	Class             Wealth  `json:"class"`
	Alive             bool    `json:"alive"`
	Talent            float64 `json:"talent"`
	Money             float64 `json:"money"`
	Confidence        float64 `json:"confidence"`
	Competence        float64 `json:"competence"`
	Aspiration        float64 `json:"aspiration"`
	RiskTolerance     float64 `json:"risk_tolerance"`
	LastTask          string  `json:"last_task"`
	LastTaskSucceeded bool    `json:"last_task_succeeded"`

	DropoutPressure   float64 `json:"dropout_pressure"`
	SocialCapital     float64 `json:"social_capital"`
	TasksAttempted    int     `json:"tasks_attempted"`
	TasksSucceeded    int     `json:"tasks_succeeded"`
	AvgTaskDifficulty float64 `json:"avg_task_difficulty"`
	FailureRate       float64 `json:"failure_rate"`
	RewardRate        float64 `json:"reward_rate"`
	TaskRepeatability int     `json:"task_repeatability"`
	InitialRewards    float64 `json:"initial_rewards"`
}

// Summary builds the agent's snapshot record.
func (a *Agent) Summary() AgentSummary {
	return AgentSummary{
		ID:                a.ID,
		Name:              a.Name,
		Age:               a.Age,
		Class:             a.Wealth,
		Alive:             a.Alive,
		Talent:            a.Talent,
		Money:             a.Rewards,
		Confidence:        a.Identity.Confidence,
		Competence:        a.Identity.Competence,
		Aspiration:        a.Identity.Aspiration,
		RiskTolerance:     a.Identity.RiskTolerance,
		LastTask:          a.LastTask,
		LastTaskSucceeded: a.LastTaskSucceeded,
		DropoutPressure:   a.DropoutPressure,
		SocialCapital:     a.SocialCapital,
		TasksAttempted:    a.TasksAttempted,
		TasksSucceeded:    a.TasksSucceeded,
		AvgTaskDifficulty: a.AvgTaskDifficulty(),
		FailureRate:       a.FailureRate(),
		RewardRate:        a.RewardRate(),
		TaskRepeatability: a.TaskRepeatability(),
		InitialRewards:    a.InitialRewards,
	}
}

// AvgTaskDifficulty is the mean difficulty of every attempted task.
func (a *Agent) AvgTaskDifficulty() float64 {
	if a.TasksAttempted == 0 {
		return 0
	}
	return a.DifficultySum / float64(a.TasksAttempted)
}

// FailureRate is the fraction of attempts that failed.
func (a *Agent) FailureRate() float64 {
	if a.TasksAttempted == 0 {
		return 0
	}
	return float64(a.TasksAttempted-a.TasksSucceeded) / float64(a.TasksAttempted)
}

// RewardRate is capital gained per year of age.
func (a *Agent) RewardRate() float64 {
	if a.Age == 0 {
		return 0
	}
	return (a.Rewards - a.InitialRewards) / float64(a.Age)
}

// TaskRepeatability is the attempt count of the most repeated task.
func (a *Agent) TaskRepeatability() int {
	most := 0
	for _, n := range a.TasksDone {
		if n > most {
			most = n
		}
	}
	return most
}

// Record notes an attempt in the reporting counters and appends a history
// entry describing the agent's state at the time of the attempt.
func (a *Agent) Record(round int, t Task, outcome Outcome) {
	a.TasksAttempted++
	if outcome.Success {
		a.TasksSucceeded++
	}
	a.DifficultySum += t.Difficulty

	if a.History == nil {
		a.History = NewHistory(DefaultHistoryWindow)
	}
	a.History.Push(HistoryEntry{
		Round:         round,
		Age:           a.Age,
		TaskName:      t.Name,
		Difficulty:    t.Difficulty,
		Success:       outcome.Success,
		Reward:        outcome.Reward,
		Loss:          outcome.Loss,
		Confidence:    a.Identity.Confidence,
		Competence:    a.Identity.Competence,
		Aspiration:    a.Identity.Aspiration,
		RiskTolerance: a.Identity.RiskTolerance,
		Money:         a.Rewards,
	})
}
