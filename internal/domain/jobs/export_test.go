package jobs

var NewRequestErrorForTest = newRequestError
