package emotion

// keywords are matched as plain substrings of the lower-cased text.
var keywords = map[Emotion][]string{
	Comfort: {
		"괜찮", "이해", "아프", "힘들", "혼자", "함께", "곁", "안아", "위로",
		"걱정", "무서", "슬프", "외로", "지쳐", "쉬어", "편안", "따뜻",
	},
	Encourage: {
		"할 수", "해보", "시작", "오늘", "내일", "도전", "용기", "한 걸음",
		"조금씩", "천천히", "괜찮아", "할 수 있", "해낼", "이겨낼",
	},
	Hope: {
		"준비", "기대", "꿈", "미래", "변화", "새로운", "나아", "성장",
		"가능", "희망", "빛", "내일", "언젠가", "곧",
	},
	Calm: {
		"정리", "현실", "상황", "지금", "사실", "보면", "생각", "이해",
		"받아들", "인정", "알아", "깨닫", "차분", "담담",
	},
	Firm: {
		"반드시", "해야", "멈춰", "지금부터", "그만", "끝", "결정",
		"명확", "분명", "단호", "강하게", "확실",
	},
	Joy: {
		"행복", "좋아", "기뻐", "고마워", "웃", "즐거", "신나", "재미",
		"사랑", "축하", "멋지", "훌륭", "최고", "감사",
	},
}
