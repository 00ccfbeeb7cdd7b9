// Package fetch — примитив GET-запроса ко внешним JSON-API с ретраями,
// бэкоффом и общим лимитом частоты.
//
// Поведение одного вызова Get:
//   - перед каждой попыткой берётся допуск у общего Limiter;
//   - на 429 клиент спит ровно Retry-After (по умолчанию 10с) и пробует
//     снова, не увеличивая экспоненту бэкоффа;
//   - на прочие ошибки (сеть, таймаут, не-2xx) пауза растёт 2с, 4с, 8с...
//     с потолком 60с;
//   - после исчерпания попыток возвращается ошибка с ErrExhausted —
//     вызывающий трактует её как «в этом цикле данных нет», не как фатал.
//
// Каждый Fetcher держит свой circuit breaker: несколько исчерпаний подряд
// открывают его, и дальнейшие вызовы падают сразу, не тратя лимит.
//
// Пример:
//
//	lim := fetch.NewLimiter(60, time.Minute)
//	od := fetch.New(fetch.Config{Name: "opendota", Limiter: lim})
//	body, err := od.Get(ctx, "https://api.opendota.com/api/players/123")
package fetch
